package service

import (
	"context"
	"errors"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/models"

	"gorm.io/gorm"
)

// 内置提示词 key
const (
	PromptResumeExtract = "intake.resume_extract"
	PromptDraftTemplate = "draft.from_template"
	PromptCriterion     = "draft.criterion_section"
	PromptRecommender   = "draft.recommendation_letter"
)

var seedApplicationTypes = []models.ApplicationType{
	{Code: "EB1A", Name: "EB-1A Extraordinary Ability", Description: "Employment-based first preference for individuals of extraordinary ability, 8 CFR 204.5(h).", Active: true},
	{Code: "O1A", Name: "O-1A Extraordinary Ability", Description: "Nonimmigrant visa for individuals with extraordinary ability in sciences, education, business or athletics.", Active: true},
	{Code: "EB2NIW", Name: "EB-2 National Interest Waiver", Description: "Advanced degree or exceptional ability petition with a waiver of the job offer requirement.", Active: true},
}

// eb1aCriteria 是 8 CFR 204.5(h)(3)(i)-(x) 中的十条标准。
var eb1aCriteria = []models.CriteriaMapping{
	{CriterionKey: "awards", Title: "Nationally or internationally recognized prizes or awards", RegulationRef: "8 CFR 204.5(h)(3)(i)",
		Description:   "Receipt of lesser nationally or internationally recognized prizes or awards for excellence in the field of endeavor.",
		EvidenceHints: "Award certificates, selection criteria, number of recipients, press coverage of the award."},
	{CriterionKey: "membership", Title: "Membership in associations requiring outstanding achievements", RegulationRef: "8 CFR 204.5(h)(3)(ii)",
		Description:   "Membership in associations in the field which require outstanding achievements of their members, as judged by recognized national or international experts.",
		EvidenceHints: "Membership certificates, bylaws describing admission requirements, proof of who judges applicants."},
	{CriterionKey: "published_material", Title: "Published material about the applicant", RegulationRef: "8 CFR 204.5(h)(3)(iii)",
		Description:   "Published material about the alien in professional or major trade publications or other major media, relating to the alien's work in the field.",
		EvidenceHints: "Articles with title, date and author, circulation figures of the publication, translations."},
	{CriterionKey: "judging", Title: "Judging the work of others", RegulationRef: "8 CFR 204.5(h)(3)(iv)",
		Description:   "Participation, either individually or on a panel, as a judge of the work of others in the same or an allied field.",
		EvidenceHints: "Peer review invitations and completion records, editorial board appointments, competition judging letters."},
	{CriterionKey: "original_contributions", Title: "Original contributions of major significance", RegulationRef: "8 CFR 204.5(h)(3)(v)",
		Description:   "Original scientific, scholarly, artistic, athletic, or business-related contributions of major significance in the field.",
		EvidenceHints: "Expert recommendation letters, citation records, patents with licensing, adoption of the work by others."},
	{CriterionKey: "scholarly_articles", Title: "Authorship of scholarly articles", RegulationRef: "8 CFR 204.5(h)(3)(vi)",
		Description:   "Authorship of scholarly articles in the field, in professional or major trade publications or other major media.",
		EvidenceHints: "Article first pages, journal impact information, Google Scholar profile."},
	{CriterionKey: "exhibitions", Title: "Display of work at exhibitions or showcases", RegulationRef: "8 CFR 204.5(h)(3)(vii)",
		Description:   "Display of the alien's work in the field at artistic exhibitions or showcases.",
		EvidenceHints: "Exhibition catalogs, invitations, venue information and attendance."},
	{CriterionKey: "leading_role", Title: "Leading or critical role for distinguished organizations", RegulationRef: "8 CFR 204.5(h)(3)(viii)",
		Description:   "Performance in a leading or critical role for organizations or establishments that have a distinguished reputation.",
		EvidenceHints: "Organization charts, letters from leadership describing the role, evidence of the organization's reputation."},
	{CriterionKey: "high_salary", Title: "High salary or remuneration", RegulationRef: "8 CFR 204.5(h)(3)(ix)",
		Description:   "Evidence that the alien has commanded a high salary or other significantly high remuneration for services, in relation to others in the field.",
		EvidenceHints: "Tax returns, pay statements, offer letters, salary survey data for comparison."},
	{CriterionKey: "commercial_success", Title: "Commercial success in the performing arts", RegulationRef: "8 CFR 204.5(h)(3)(x)",
		Description:   "Evidence of commercial successes in the performing arts, as shown by box office receipts or record, cassette, compact disk, or video sales.",
		EvidenceHints: "Box office receipts, sales figures, streaming statistics, chart rankings."},
}

var defaultPrompts = []models.AgentPrompt{
	{
		Key:  PromptResumeExtract,
		Name: "Resume extraction",
		SystemPrompt: "You are an immigration paralegal. Read the resume and extract a structured profile. " +
			"Answer with a single JSON object and nothing else.",
		UserTemplate: `Application type: {{.Case.ApplicationType.Code}}

Available criteria (use only these keys in suggested_criteria):
{{range .Criteria}}- {{.CriterionKey}}: {{.Title}}
{{end}}
Return JSON with keys: name, field, summary, highlights (array of strings), suggested_criteria (array of criterion keys).

Resume:
{{.ResumeText}}`,
		Temperature: 0.1,
	},
	{
		Key:  PromptDraftTemplate,
		Name: "Draft from template",
		SystemPrompt: "You are an experienced immigration attorney drafting documents for a petition. " +
			"Use only facts from the case profile and evidence. Do not invent awards, dates or numbers. Write in Markdown.",
		UserTemplate: `Write the document for {{.Case.BeneficiaryName}}.
{{if .Instructions}}Instructions: {{.Instructions}}{{end}}`,
		Temperature: 0.3,
	},
	{
		Key:  PromptCriterion,
		Name: "Criterion section",
		SystemPrompt: "You are an experienced immigration attorney writing one section of an EB-1A petition letter. " +
			"Cite exhibits by file name. Use only the evidence provided. Write in Markdown.",
		UserTemplate: `Beneficiary: {{.Case.BeneficiaryName}} ({{.Case.FieldOfExpertise}})
Profile summary: {{.Profile.Summary}}
{{with .Criterion}}
Criterion: {{.Title}} ({{.RegulationRef}})
{{.Description}}
{{end}}
Evidence:
{{range $i, $e := .Evidence}}[{{inc $i}}] {{$e.FileName}}{{if $e.PageLabel}} p.{{$e.PageLabel}}{{end}}: {{$e.Text}}
{{else}}(no indexed evidence yet)
{{end}}
{{if .Instructions}}Additional instructions: {{.Instructions}}{{end}}
Write the section arguing that the beneficiary meets this criterion.`,
		Temperature: 0.3,
	},
	{
		Key:  PromptRecommender,
		Name: "Recommendation letter",
		SystemPrompt: "You are drafting an expert recommendation letter for an immigration petition. " +
			"The letter is written in the first person by the recommender. Use only the facts provided.",
		UserTemplate: `Beneficiary: {{.Case.BeneficiaryName}}, field: {{.Case.FieldOfExpertise}}
Highlights:
{{range .Profile.Highlights}}- {{.}}
{{end}}
Evidence:
{{range .Evidence}}- {{.Text}}
{{end}}
{{if .Instructions}}Recommender details and instructions: {{.Instructions}}{{end}}`,
		Temperature: 0.4,
	},
}

var defaultTemplates = []models.Template{
	{
		Name: "Expert recommendation letter",
		Kind: models.TemplateRecommendationLetter,
		Body: `Draft a recommendation letter supporting {{.Case.BeneficiaryName}}'s petition.
{{with .Criterion}}Focus on the criterion "{{.Title}}".{{end}}
Evidence excerpts:
{{range .Evidence}}- {{.Text}}
{{end}}
{{if .Instructions}}{{.Instructions}}{{end}}`,
	},
	{
		Name: "Petition cover letter",
		Kind: models.TemplateCoverLetter,
		Body: `Draft a cover letter to USCIS for the {{.Case.ApplicationType.Name}} petition of {{.Case.BeneficiaryName}}.
Claimed criteria: {{join .Case.SelectedCriteria ", "}}.
{{if .Instructions}}{{.Instructions}}{{end}}`,
	},
}

// SeedResult 汇总一次 Seed 新建的记录数。
type SeedResult struct {
	ApplicationTypes int `json:"application_types"`
	Criteria         int `json:"criteria"`
	Prompts          int `json:"prompts"`
	Templates        int `json:"templates"`
}

// Seed 写入默认的申请类别、EB-1A 标准、提示词和模板。已存在的记录保持不变，可以重复执行。
func (s *Service) Seed(ctx context.Context) (SeedResult, error) {
	var res SeedResult
	var eb1a *models.ApplicationType
	for i := range seedApplicationTypes {
		t, err := s.Store.GetApplicationTypeByCode(ctx, seedApplicationTypes[i].Code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			t = &models.ApplicationType{}
			*t = seedApplicationTypes[i]
			if err = s.Store.CreateApplicationType(ctx, t); err != nil {
				return res, apperr.FromDB(err)
			}
			res.ApplicationTypes++
		} else if err != nil {
			return res, apperr.FromDB(err)
		}
		if t.Code == "EB1A" {
			eb1a = t
		}
	}

	existing, err := s.validCriteria(ctx, eb1a.ID)
	if err != nil {
		return res, err
	}
	for i, c := range eb1aCriteria {
		if _, ok := existing[c.CriterionKey]; ok {
			continue
		}
		c.ApplicationTypeID = eb1a.ID
		c.SortOrder = i + 1
		if err := s.Store.CreateCriterion(ctx, &c); err != nil {
			return res, apperr.FromDB(err)
		}
		res.Criteria++
	}

	for _, p := range defaultPrompts {
		_, err := s.Store.GetPromptByKey(ctx, p.Key)
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return res, apperr.FromDB(err)
		}
		p.Version, p.Active = 1, true
		if err := s.Store.CreatePrompt(ctx, &p); err != nil {
			return res, apperr.FromDB(err)
		}
		res.Prompts++
	}

	templates, err := s.Store.ListTemplates(ctx, "", 0)
	if err != nil {
		return res, apperr.FromDB(err)
	}
	names := make(map[string]bool, len(templates))
	for _, t := range templates {
		names[t.Name] = true
	}
	for _, t := range defaultTemplates {
		if names[t.Name] {
			continue
		}
		t.Version = 1
		if err := s.Store.CreateTemplate(ctx, &t); err != nil {
			return res, apperr.FromDB(err)
		}
		res.Templates++
	}
	return res, nil
}

// defaultPrompt 返回内置的提示词，数据库中没有该 key 时作为兜底。
func defaultPrompt(key string) (*models.AgentPrompt, bool) {
	for _, p := range defaultPrompts {
		if p.Key == key {
			p.Version, p.Active = 0, true
			return &p, true
		}
	}
	return nil, false
}
