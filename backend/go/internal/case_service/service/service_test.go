package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"CaseForAI/backend/go/internal/auth"
	"CaseForAI/backend/go/internal/config"
	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/internal/rag/loaders"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/stretchr/testify/require"
)

const (
	owner    uint = 1
	stranger uint = 2
)

// clock 从真实时间开始，测试中可以向前拨动。分享令牌的过期校验使用真实时间。
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	svc       *Service
	store     *memStore
	objects   *memObjects
	queue     *memQueue
	events    *memEvents
	llm       *fakeLLM
	retriever *fakeRetriever
	gens      *fakeGenerations
	mailer    *fakeMailer
	esign     *fakeESign
	tokens    *auth.Tokens
	clock     *clock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:     newMemStore(),
		objects:   newMemObjects(),
		queue:     &memQueue{},
		events:    &memEvents{},
		llm:       &fakeLLM{},
		retriever: &fakeRetriever{},
		gens:      &fakeGenerations{},
		mailer:    &fakeMailer{fail: map[string]bool{}},
		esign:     &fakeESign{secret: []byte("whsec"), remindFail: map[string]bool{}},
		tokens:    auth.NewTokens("test-secret", time.Hour),
		clock:     &clock{t: time.Now().UTC()},
	}
	svc, err := NewService(Deps{
		Store:       e.store,
		Objects:     e.objects,
		Ingest:      e.queue,
		Events:      e.events,
		LLM:         e.llm,
		Retriever:   e.retriever,
		Generations: e.gens,
		Mailer:      e.mailer,
		ESign:       e.esign,
		Tokens:      e.tokens,
	}, Options{
		PublicBaseURL: "https://app.example.com/",
		Uploads: config.UploadConfig{
			MaxBytes:     1 << 20,
			AllowedGlobs: []string{"*.pdf", "*.docx", "*.txt", "*.md", "*.{png,jpg,jpeg}"},
			AllowedMIMEs: []string{loaders.MimePDF, loaders.MimeDOCX, loaders.MimeText, "image/png"},
		},
		Now: e.clock.Now,
	}, logger.Nop())
	require.NoError(t, err)
	e.svc = svc
	return e
}

// seeded 写入默认数据并为 owner 创建一个 EB1A 案件。
func (e *env) seeded(t *testing.T) *models.Case {
	t.Helper()
	_, err := e.svc.Seed(context.Background())
	require.NoError(t, err)
	c, err := e.svc.CreateCase(context.Background(), owner, CreateCaseInput{
		Title:            "Dr. Ada petition",
		ApplicationType:  "eb1a",
		FieldOfExpertise: "Mathematics",
		SelectedCriteria: []string{"awards", "judging"},
	})
	require.NoError(t, err)
	return c
}

func (e *env) upload(t *testing.T, caseID, name, criterion string, data []byte) *models.Document {
	t.Helper()
	d, err := e.svc.UploadDocument(context.Background(), owner, caseID, UploadInput{FileName: name, Data: data, CriterionKey: criterion})
	require.NoError(t, err)
	return d
}

func (e *env) draft(t *testing.T, caseID, title, content string) *models.Document {
	t.Helper()
	d := &models.Document{CaseID: caseID, OwnerID: owner, Title: title, Kind: models.DocDraft, MimeType: "text/markdown", Content: content}
	require.NoError(t, e.store.CreateDocument(context.Background(), d))
	return d
}

func samplePDF(t *testing.T, title string) []byte {
	t.Helper()
	b, err := renderPDF(title, "Exhibit body for "+title)
	require.NoError(t, err)
	return b
}
