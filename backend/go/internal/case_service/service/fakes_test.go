package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/case_service/store"
	"CaseForAI/backend/go/internal/email"
	"CaseForAI/backend/go/internal/esign"
	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/internal/rag/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// applyUpdates 用 JSON 把列更新写回结构体，测试中的列名与 json 标签一致。
func applyUpdates(dst interface{}, updates map[string]interface{}) {
	b, err := json.Marshal(updates)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		panic(err)
	}
}

type memStore struct {
	mu         sync.Mutex
	nextID     uint
	types      map[uint]*models.ApplicationType
	criteria   map[uint]*models.CriteriaMapping
	prompts    map[uint]*models.AgentPrompt
	templates  map[uint]*models.Template
	cases      map[string]*models.Case
	docs       map[string]*models.Document
	shares     map[string]*models.DocumentShare
	signatures map[string]*models.SignatureRequest
	packages   map[string]*models.CasePackage
	failUpdate error
	// failCompletion 让下一次写入 completed_at 失败
	failCompletion error
	// packageRaces 是 CreatePackage 之前被"并发打包"抢走版本号的次数
	packageRaces int
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		types:      map[uint]*models.ApplicationType{},
		criteria:   map[uint]*models.CriteriaMapping{},
		prompts:    map[uint]*models.AgentPrompt{},
		templates:  map[uint]*models.Template{},
		cases:      map[string]*models.Case{},
		docs:       map[string]*models.Document{},
		shares:     map[string]*models.DocumentShare{},
		signatures: map[string]*models.SignatureRequest{},
		packages:   map[string]*models.CasePackage{},
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

// --- admin ---

func (m *memStore) ListApplicationTypes(_ context.Context, activeOnly bool) ([]models.ApplicationType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ApplicationType
	for _, t := range m.types {
		if !activeOnly || t.Active {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memStore) GetApplicationType(_ context.Context, id uint) (*models.ApplicationType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.types[id]; ok {
		c := *t
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) GetApplicationTypeByCode(_ context.Context, code string) (*models.ApplicationType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.types {
		if t.Code == code {
			c := *t
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) CreateApplicationType(_ context.Context, t *models.ApplicationType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.types {
		if x.Code == t.Code {
			return gorm.ErrDuplicatedKey
		}
	}
	t.ID = m.id()
	c := *t
	m.types[t.ID] = &c
	return nil
}

func (m *memStore) UpdateApplicationType(_ context.Context, id uint, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.types[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	applyUpdates(t, updates)
	return nil
}

func (m *memStore) DeleteApplicationType(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.types[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.types, id)
	return nil
}

func (m *memStore) CountCasesByApplicationType(_ context.Context, id uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.cases {
		if c.ApplicationTypeID == id {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListCriteria(_ context.Context, typeID uint) ([]models.CriteriaMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CriteriaMapping
	for _, c := range m.criteria {
		if typeID == 0 || c.ApplicationTypeID == typeID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) GetCriterion(_ context.Context, id uint) (*models.CriteriaMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.criteria[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) CreateCriterion(_ context.Context, c *models.CriteriaMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.criteria {
		if x.ApplicationTypeID == c.ApplicationTypeID && x.CriterionKey == c.CriterionKey {
			return gorm.ErrDuplicatedKey
		}
	}
	c.ID = m.id()
	cp := *c
	m.criteria[c.ID] = &cp
	return nil
}

func (m *memStore) UpdateCriterion(_ context.Context, id uint, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.criteria[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	applyUpdates(c, updates)
	return nil
}

func (m *memStore) DeleteCriterion(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.criteria[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.criteria, id)
	return nil
}

func (m *memStore) ListPrompts(context.Context) ([]models.AgentPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AgentPrompt
	for _, p := range m.prompts {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) GetPrompt(_ context.Context, id uint) (*models.AgentPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.prompts[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) GetPromptByKey(_ context.Context, key string) (*models.AgentPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prompts {
		if p.Key == key {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) CreatePrompt(_ context.Context, p *models.AgentPrompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.prompts {
		if x.Key == p.Key {
			return gorm.ErrDuplicatedKey
		}
	}
	p.ID = m.id()
	cp := *p
	m.prompts[p.ID] = &cp
	return nil
}

func (m *memStore) UpdatePrompt(_ context.Context, id uint, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	applyUpdates(p, updates)
	p.Version++
	return nil
}

func (m *memStore) DeletePrompt(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prompts[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.prompts, id)
	return nil
}

func (m *memStore) ListTemplates(_ context.Context, kind string, typeID uint) ([]models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Template
	for _, t := range m.templates {
		if kind != "" && string(t.Kind) != kind {
			continue
		}
		if typeID != 0 && (t.ApplicationTypeID == nil || *t.ApplicationTypeID != typeID) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m *memStore) GetTemplate(_ context.Context, id uint) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.templates[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) CreateTemplate(_ context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.templates {
		if x.Name == t.Name {
			return gorm.ErrDuplicatedKey
		}
	}
	t.ID = m.id()
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *memStore) UpdateTemplate(_ context.Context, id uint, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	applyUpdates(t, updates)
	t.Version++
	return nil
}

func (m *memStore) DeleteTemplate(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.templates, id)
	return nil
}

// --- cases ---

func (m *memStore) ListCases(_ context.Context, ownerID uint, offset, limit int) ([]models.Case, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Case
	for _, c := range m.cases {
		if c.OwnerID == ownerID {
			all = append(all, *c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *memStore) GetCase(_ context.Context, id string) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	if t, ok := m.types[c.ApplicationTypeID]; ok {
		tc := *t
		cp.ApplicationType = &tc
	}
	return &cp, nil
}

func (m *memStore) CreateCase(_ context.Context, c *models.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.types[c.ApplicationTypeID]; !ok {
		return gorm.ErrForeignKeyViolated
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt, c.UpdatedAt = time.Now(), time.Now()
	cp := *c
	cp.ApplicationType = nil
	m.cases[c.ID] = &cp
	return nil
}

func (m *memStore) UpdateCase(_ context.Context, id string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return m.failUpdate
	}
	c, ok := m.cases[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	applyUpdates(c, updates)
	return nil
}

func (m *memStore) DeleteCase(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.cases, id)
	for sid, sh := range m.shares {
		if sh.CaseID == id {
			delete(m.shares, sid)
		}
	}
	return nil
}

func (m *memStore) CountDocumentsByCriterion(_ context.Context, caseID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, d := range m.docs {
		if d.CaseID == caseID && d.CriterionKey != "" {
			out[d.CriterionKey]++
		}
	}
	return out, nil
}

// --- documents ---

func (m *memStore) CreateDocument(_ context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = models.DocUploaded
	}
	if d.Version == 0 {
		d.Version = 1
	}
	d.CreatedAt = time.Now().Add(time.Duration(len(m.docs)) * time.Millisecond)
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *memStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) ListDocuments(_ context.Context, caseID, criterion string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		if d.CaseID == caseID && (criterion == "" || d.CriterionKey == criterion) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) UpdateDocument(_ context.Context, id string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	applyUpdates(d, updates)
	return nil
}

func (m *memStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.docs, id)
	return nil
}

// --- shares ---

func (m *memStore) CreateShare(_ context.Context, share *models.DocumentShare, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[share.DocumentID]; !ok {
		return gorm.ErrRecordNotFound
	}
	for _, x := range m.shares {
		if x.DocumentID == share.DocumentID && x.RecipientEmail == share.RecipientEmail && x.Active(now) {
			return apperr.NewConflict("该收件人已有有效的分享链接")
		}
	}
	share.ID, share.TokenID = uuid.New().String(), uuid.New().String()
	share.CreatedAt = now
	cp := *share
	m.shares[share.ID] = &cp
	return nil
}

func (m *memStore) GetShare(_ context.Context, id string) (*models.DocumentShare, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.shares[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) ListShares(_ context.Context, documentID string) ([]models.DocumentShare, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DocumentShare
	for _, s := range m.shares {
		if s.DocumentID == documentID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) RevokeShare(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.shares[id]; ok && s.RevokedAt == nil {
		s.RevokedAt = &at
	}
	return nil
}

func (m *memStore) RecordShareAccess(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.shares[id]; ok {
		s.AccessCount++
		s.LastAccessedAt = &at
	}
	return nil
}

func (m *memStore) ExpireShares(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.shares {
		if s.RevokedAt == nil && !now.Before(s.ExpiresAt) {
			at := now
			s.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

// --- signatures ---

func (m *memStore) CreateSignatureRequest(_ context.Context, r *models.SignatureRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	for i := range r.Signers {
		r.Signers[i].ID = m.id()
		r.Signers[i].RequestID = r.ID
	}
	r.CreatedAt = time.Now()
	cp := *r
	cp.Signers = append([]models.SignatureSigner(nil), r.Signers...)
	m.signatures[r.ID] = &cp
	return nil
}

func (m *memStore) copySignature(r *models.SignatureRequest) *models.SignatureRequest {
	cp := *r
	cp.Signers = append([]models.SignatureSigner(nil), r.Signers...)
	return &cp
}

func (m *memStore) GetSignatureRequest(_ context.Context, id string) (*models.SignatureRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.signatures[id]; ok {
		return m.copySignature(r), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) GetSignatureRequestByProviderID(_ context.Context, providerID string) (*models.SignatureRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.signatures {
		if r.ProviderRequestID == providerID {
			return m.copySignature(r), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) ListSignatureRequests(_ context.Context, caseID string) ([]models.SignatureRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SignatureRequest
	for _, r := range m.signatures {
		if r.CaseID == caseID {
			out = append(out, *m.copySignature(r))
		}
	}
	return out, nil
}

func (m *memStore) UpdateSignatureRequest(_ context.Context, id string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.signatures[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if _, completing := updates["completed_at"]; completing && m.failCompletion != nil {
		err := m.failCompletion
		m.failCompletion = nil
		return err
	}
	applyUpdates(r, updates)
	return nil
}

func (m *memStore) ClaimSignedDocument(_ context.Context, requestID, docID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.signatures[requestID]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	if r.SignedDocumentID == "" {
		r.SignedDocumentID = docID
	}
	return r.SignedDocumentID, nil
}

func (m *memStore) UpdateSigner(_ context.Context, signerID uint, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.signatures {
		for i := range r.Signers {
			if r.Signers[i].ID == signerID {
				applyUpdates(&r.Signers[i], updates)
				return nil
			}
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *memStore) ListStaleSignatureRequests(_ context.Context, before time.Time) ([]models.SignatureRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SignatureRequest
	for _, r := range m.signatures {
		last := r.CreatedAt
		if r.LastRemindedAt != nil {
			last = *r.LastRemindedAt
		}
		if r.Status.Open() && last.Before(before) {
			out = append(out, *m.copySignature(r))
		}
	}
	return out, nil
}

// --- packages ---

func (m *memStore) NextPackageVersion(_ context.Context, caseID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxPackageVersion(caseID) + 1, nil
}

func (m *memStore) CreatePackage(_ context.Context, pkg *models.CasePackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.packageRaces > 0 {
		m.packageRaces--
		id := uuid.New().String()
		m.packages[id] = &models.CasePackage{ID: id, CaseID: pkg.CaseID, Version: m.maxPackageVersion(pkg.CaseID) + 1}
	}
	if pkg.Version != m.maxPackageVersion(pkg.CaseID)+1 {
		return store.ErrPackageVersionTaken
	}
	pkg.ID = uuid.New().String()
	cp := *pkg
	m.packages[pkg.ID] = &cp
	return nil
}

func (m *memStore) maxPackageVersion(caseID string) int {
	max := 0
	for _, p := range m.packages {
		if p.CaseID == caseID && p.Version > max {
			max = p.Version
		}
	}
	return max
}

func (m *memStore) ListPackages(_ context.Context, caseID string) ([]models.CasePackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CasePackage
	for _, p := range m.packages {
		if p.CaseID == caseID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (m *memStore) GetPackage(_ context.Context, id string) (*models.CasePackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.packages[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// --- collaborators ---

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut error
}

func newMemObjects() *memObjects { return &memObjects{objects: map[string][]byte{}} }

func (o *memObjects) Put(_ context.Context, key string, data []byte, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failPut != nil {
		return o.failPut
	}
	o.objects[key] = append([]byte(nil), data...)
	return nil
}

func (o *memObjects) Get(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return b, nil
}

func (o *memObjects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

func (o *memObjects) PresignGet(_ context.Context, key, name string, ttl time.Duration) (string, error) {
	return "https://objects.test/" + key + "?name=" + name + "&ttl=" + ttl.String(), nil
}

func (o *memObjects) has(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[key]
	return ok
}

type memQueue struct {
	mu   sync.Mutex
	msgs []models.IngestMessage
	err  error
}

func (q *memQueue) Publish(_ context.Context, _ string, value interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, value.(models.IngestMessage))
	return nil
}

type memEvents struct {
	mu     sync.Mutex
	events []models.CaseEvent
}

func (e *memEvents) Publish(_ context.Context, ev models.CaseEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *memEvents) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []*models.GenerateContentRequest
}

func (f *fakeLLM) GenerateContent(_ context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &models.GenerateContentResponse{Content: []models.Content{{Role: models.SpeakerModel, Parts: []*models.Part{{Text: f.reply}}}}}, nil
}

func (f *fakeLLM) lastUser() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.requests[len(f.requests)-1]
	return req.Content[0].Parts[0].Text
}

type fakeRetriever struct {
	docs  []*schema.Document
	err   error
	calls int
}

func (r *fakeRetriever) Run(_ context.Context, _ string, _ string, topK int) ([]*schema.Document, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if len(r.docs) > topK {
		return r.docs[:topK], nil
	}
	return r.docs, nil
}

type fakeGenerations struct {
	mu      sync.Mutex
	records []*models.GenerationRecord
	err     error
}

func (g *fakeGenerations) Record(_ context.Context, rec *models.GenerationRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.records = append(g.records, rec)
	return nil
}

func (g *fakeGenerations) ListByCase(context.Context, string, int) ([]*models.GenerationRecord, error) {
	return g.records, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []email.Message
	fail map[string]bool
}

func (f *fakeMailer) Send(_ context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeESign struct {
	mu         sync.Mutex
	secret     []byte
	createErr  error
	remindFail map[string]bool
	reminded   []string
	canceled   []string
	signed     []byte
	created    []esign.CreateRequest
}

func (f *fakeESign) CreateRequest(_ context.Context, req esign.CreateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, req)
	return "prov-" + uuid.New().String(), nil
}

func (f *fakeESign) Remind(_ context.Context, _ string, signerEmail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remindFail[signerEmail] {
		return errors.New("provider rejected reminder")
	}
	f.reminded = append(f.reminded, signerEmail)
	return nil
}

func (f *fakeESign) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeESign) DownloadSigned(context.Context, string) ([]byte, error) {
	return f.signed, nil
}

func (f *fakeESign) VerifyWebhook(body []byte, signature string) error {
	return esign.VerifySignature(f.secret, body, signature)
}
