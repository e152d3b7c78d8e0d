package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/case_service/store"
	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/internal/pdfkit"
	"CaseForAI/backend/go/internal/rag/loaders"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// packageFetchLimit 是打包时并发读取文档的上限。
	packageFetchLimit = 4
	// packageAttempts 是版本号被抢占时的最大尝试次数。
	packageAttempts = 3
)

type PackageInput struct {
	DocumentIDs []string `json:"document_ids"`
	Title       string   `json:"title" binding:"max=255"`
}

// exhibit 是打包中的一份材料。
type exhibit struct {
	doc      models.Document
	number   string
	criteria string
	pdf      []byte
	pages    int
}

// selectPackageDocuments 选出要打包的文档，指定的 ID 必须都属于该案件。
func selectPackageDocuments(all []models.Document, ids []string) ([]models.Document, error) {
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[string]models.Document, len(all))
	for _, d := range all {
		byID[d.ID] = d
	}
	seen := make(map[string]bool, len(ids))
	out := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			return nil, apperr.NewValidation("文档 %s 不属于该案件", id)
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, d)
		}
	}
	return out, nil
}

// orderExhibits 按 (标准顺序, 证据顺序, 创建时间) 排序并编号。每条标准一个字母，没有标准的材料排在最后。
func orderExhibits(docs []models.Document, criteria map[string]models.CriteriaMapping) []*exhibit {
	rank := func(d models.Document) int {
		if c, ok := criteria[d.CriterionKey]; ok && d.CriterionKey != "" {
			return c.SortOrder
		}
		return math.MaxInt32
	}
	sorted := append([]models.Document(nil), docs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rank(sorted[i]), rank(sorted[j])
		if ri != rj {
			return ri < rj
		}
		if ri == math.MaxInt32 || sorted[i].CriterionKey == sorted[j].CriterionKey {
			if sorted[i].ExhibitOrder != sorted[j].ExhibitOrder {
				return sorted[i].ExhibitOrder < sorted[j].ExhibitOrder
			}
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].CriterionKey < sorted[j].CriterionKey
	})

	out := make([]*exhibit, 0, len(sorted))
	letters := map[string]string{}
	counts := map[string]int{}
	for _, d := range sorted {
		group := d.CriterionKey
		if _, ok := criteria[group]; !ok {
			group = ""
		}
		letter, ok := letters[group]
		if !ok {
			letter = exhibitLetter(len(letters))
			letters[group] = letter
		}
		counts[group]++
		title := "General"
		if c, ok := criteria[group]; ok {
			title = c.Title
		}
		out = append(out, &exhibit{doc: d, number: fmt.Sprintf("%s-%d", letter, counts[group]), criteria: title})
	}
	return out
}

// exhibitLetter 返回 A..Z, AA, AB...
func exhibitLetter(i int) string {
	s := ""
	for i >= 0 {
		s = string(rune('A'+i%26)) + s
		i = i/26 - 1
	}
	return s
}

// loadExhibits 并发读取每份材料的 PDF。非 PDF 文件和无法解析的 PDF 保持 pdf 为空，作为单独提供的材料列出。
func (s *Service) loadExhibits(ctx context.Context, exhibits []*exhibit) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(packageFetchLimit)
	for _, ex := range exhibits {
		ex := ex
		g.Go(func() error {
			var data []byte
			switch {
			case ex.doc.ObjectKey != "" && ex.doc.IsPDF():
				b, err := s.Objects.Get(gctx, ex.doc.ObjectKey)
				if err != nil {
					return fmt.Errorf("fetch %s: %w", ex.doc.ID, err)
				}
				data = b
			case ex.doc.ObjectKey == "" && strings.TrimSpace(ex.doc.Content) != "":
				b, err := renderPDF(ex.doc.Title, ex.doc.Content)
				if err != nil {
					return fmt.Errorf("render %s: %w", ex.doc.ID, err)
				}
				data = b
			default:
				return nil
			}
			n, err := pdfkit.PageCount(bytes.NewReader(data))
			if err != nil {
				s.log.WithErr(err).Warn("document " + ex.doc.ID + " is not a readable pdf, listing it separately")
				return nil
			}
			ex.pdf, ex.pages = data, n
			return nil
		})
	}
	return g.Wait()
}

// exhibitEntries 生成目录行，start 是第一份材料在合并文件中的页码。
func exhibitEntries(exhibits []*exhibit, start int) []pdfkit.ExhibitEntry {
	entries := make([]pdfkit.ExhibitEntry, 0, len(exhibits))
	page := start
	for _, ex := range exhibits {
		e := pdfkit.ExhibitEntry{Number: ex.number, Title: ex.doc.Title, Criterion: ex.criteria}
		if ex.pdf == nil {
			e.Separate = true
		} else {
			e.Pages = page
			page += ex.pages
		}
		entries = append(entries, e)
	}
	return entries
}

func renderIndex(exhibits []*exhibit, start int) ([]byte, int, error) {
	var buf bytes.Buffer
	if err := pdfkit.ExhibitIndex(exhibitEntries(exhibits, start), &buf); err != nil {
		return nil, 0, err
	}
	n, err := pdfkit.PageCount(bytes.NewReader(buf.Bytes()))
	return buf.Bytes(), n, err
}

// CreatePackage 把案件材料合并为带封面、目录和页码的 PDF，并分配新的版本号。
func (s *Service) CreatePackage(ctx context.Context, userID uint, caseID string, in PackageInput) (*models.CasePackage, error) {
	c, err := s.loadCase(ctx, userID, caseID)
	if err != nil {
		return nil, err
	}
	all, err := s.Store.ListDocuments(ctx, caseID, "")
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	docs, err := selectPackageDocuments(all, in.DocumentIDs)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperr.NewValidation("案件没有可打包的文档")
	}
	criteria, err := s.validCriteria(ctx, c.ApplicationTypeID)
	if err != nil {
		return nil, err
	}
	exhibits := orderExhibits(docs, criteria)
	if err := s.loadExhibits(ctx, exhibits); err != nil {
		return nil, apperr.NewUnavailable(err, "文件存储暂时不可用")
	}

	var included, skipped []string
	for _, ex := range exhibits {
		if ex.pdf == nil {
			skipped = append(skipped, ex.doc.ID)
		} else {
			included = append(included, ex.doc.ID)
		}
	}
	if len(included) == 0 {
		return nil, apperr.NewValidation("案件没有可合并的 PDF 文档")
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = c.Title
	}
	typeName := ""
	if c.ApplicationType != nil {
		typeName = c.ApplicationType.Name
	}

	// 目录的页数决定材料的起始页：先按占位页码渲染一次得到目录页数。
	_, indexPages, err := renderIndex(exhibits, 2)
	if err != nil {
		return nil, err
	}
	index, _, err := renderIndex(exhibits, 1+indexPages+1)
	if err != nil {
		return nil, err
	}

	render := func(version int) ([]byte, int, error) {
		var cover bytes.Buffer
		err := pdfkit.CoverPage(pdfkit.CoverInfo{
			Title:           title,
			ApplicationType: typeName,
			Beneficiary:     c.BeneficiaryName,
			Field:           c.FieldOfExpertise,
			Version:         version,
			PreparedAt:      s.now(),
		}, &cover)
		if err != nil {
			return nil, 0, err
		}
		parts := [][]byte{cover.Bytes(), index}
		for _, ex := range exhibits {
			if ex.pdf != nil {
				parts = append(parts, ex.pdf)
			}
		}
		var merged, numbered bytes.Buffer
		if err := pdfkit.Merge(pdfkit.Readers(parts), &merged); err != nil {
			return nil, 0, err
		}
		if err := pdfkit.NumberPages(bytes.NewReader(merged.Bytes()), &numbered, pdfkit.NumberOptions{}); err != nil {
			return nil, 0, err
		}
		pages, err := pdfkit.PageCount(bytes.NewReader(numbered.Bytes()))
		if err != nil {
			return nil, 0, err
		}
		return numbered.Bytes(), pages, nil
	}

	// 先预留版本号，在事务外渲染并上传到唯一的 key，最后在短事务里确认版本并写入记录。
	// 版本被并发的打包抢占时删除已上传的文件并重试。
	for attempt := 0; attempt < packageAttempts; attempt++ {
		version, err := s.Store.NextPackageVersion(ctx, caseID)
		if err != nil {
			return nil, apperr.FromDB(err)
		}
		data, pages, err := render(version)
		if err != nil {
			return nil, err
		}
		pkg := &models.CasePackage{
			CaseID:      caseID,
			Version:     version,
			Title:       title,
			ObjectKey:   models.PackageObjectKey(caseID, version, uuid.New().String()),
			PageCount:   pages,
			Size:        int64(len(data)),
			DocumentIDs: included,
			Skipped:     skipped,
			CreatedByID: userID,
		}
		if err := s.Objects.Put(ctx, pkg.ObjectKey, data, loaders.MimePDF); err != nil {
			return nil, apperr.NewUnavailable(err, "文件存储暂时不可用")
		}
		err = s.Store.CreatePackage(ctx, pkg)
		if err == nil {
			s.publishEvent(ctx, models.CaseEvent{
				Type: models.EventPackageCreated, CaseID: caseID, UserID: c.OwnerID,
				Payload: map[string]interface{}{"package_id": pkg.ID, "version": pkg.Version, "pages": pkg.PageCount},
			})
			return pkg, nil
		}
		if derr := s.Objects.Delete(ctx, pkg.ObjectKey); derr != nil {
			s.log.WithErr(derr).Warn("failed to remove orphaned object " + pkg.ObjectKey)
		}
		if !errors.Is(err, store.ErrPackageVersionTaken) {
			return nil, dbErr(err, "案件")
		}
	}
	return nil, apperr.NewConflict("案件正在被并发打包，请稍后重试")
}

func (s *Service) ListPackages(ctx context.Context, userID uint, caseID string) ([]models.CasePackage, error) {
	if _, err := s.loadCase(ctx, userID, caseID); err != nil {
		return nil, err
	}
	list, err := s.Store.ListPackages(ctx, caseID)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	if list == nil {
		list = []models.CasePackage{}
	}
	return list, nil
}

// DownloadPackage 返回打包文件的预签名下载地址。
func (s *Service) DownloadPackage(ctx context.Context, userID uint, packageID string) (*DownloadLink, error) {
	pkg, err := s.Store.GetPackage(ctx, packageID)
	if err != nil {
		return nil, dbErr(err, "打包文件")
	}
	if _, err := s.loadCase(ctx, userID, pkg.CaseID); err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.NewNotFound("打包文件不存在")
		}
		return nil, err
	}
	name := fmt.Sprintf("case-package-v%d.pdf", pkg.Version)
	url, err := s.Objects.PresignGet(ctx, pkg.ObjectKey, name, s.opts.PresignTTL)
	if err != nil {
		return nil, apperr.NewUnavailable(err, "文件存储暂时不可用")
	}
	return &DownloadLink{URL: url, ExpiresIn: int(s.opts.PresignTTL.Seconds()), FileName: name}, nil
}
