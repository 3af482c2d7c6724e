package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/weibaohui/decision-council/internal/domain"
	"github.com/weibaohui/decision-council/internal/service"
)

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	section lipgloss.Style
	label   lipgloss.Style
	detail  lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		section: lipgloss.NewStyle().PaddingLeft(2).MarginTop(1),
		label:   lipgloss.NewStyle().Bold(true),
		detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
}

func renderConsultation(resp *service.ConsultResponse, s styles) string {
	lines := []string{
		s.title.Render("Council Decision"),
		s.header.Render(fmt.Sprintf("id: %s  status: %s  backend: %s", resp.ID, resp.Status, resp.Backend)),
	}
	c := resp.Consensus
	if c == nil {
		lines = append(lines, s.warn.Render("No consensus available."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines,
		s.section.Render(lipgloss.JoinVertical(lipgloss.Left,
			s.label.Render("Decision"),
			c.Decision,
			s.detail.Render(c.Summary),
			s.detail.Render(fmt.Sprintf("confidence: %.0f%%", c.Confidence*100)),
		)),
	)
	for _, bucket := range []struct {
		name  string
		items []string
	}{
		{"Consensus", c.ConsensusBullets},
		{"Top risks", c.TopRisks},
		{"Conditions", c.Conditions},
		{"Disagreements", c.Disagreements},
		{"Next steps", c.NextSteps},
	} {
		lines = append(lines, s.section.Render(bulletBlock(bucket.name, bucket.items, s)))
	}

	roles := make([]string, 0, len(c.AdvisorBullets))
	for role := range c.AdvisorBullets {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		title := domain.RoleKey(role).Title()
		if e, ok := resp.Emphasis[domain.RoleKey(role)]; ok {
			title = fmt.Sprintf("%s (%s)", title, e)
		}
		lines = append(lines, s.section.Render(bulletBlock(title, c.AdvisorBullets[role], s)))
	}

	if len(c.MissingRoles) > 0 || c.Degraded {
		note := "degraded result"
		if len(c.MissingRoles) > 0 {
			missing := make([]string, 0, len(c.MissingRoles))
			for _, r := range c.MissingRoles {
				missing = append(missing, r.Title())
			}
			note = "missing advisors: " + strings.Join(missing, ", ")
		}
		lines = append(lines, s.section.Render(s.warn.Render(note)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func bulletBlock(title string, items []string, s styles) string {
	parts := []string{s.label.Render(title)}
	if len(items) == 0 {
		parts = append(parts, s.detail.Render("  (none)"))
	}
	for _, item := range items {
		parts = append(parts, "  • "+item)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderPreview(p *service.WeightPreview, s styles) string {
	lines := []string{
		s.title.Render("Advisor Emphasis"),
		s.header.Render(fmt.Sprintf("advisors: %d  rules applied: %d", len(p.Roles), len(p.AppliedRules))),
	}
	rows := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		rows = append(rows, fmt.Sprintf("%-20s %s", r.Title(), s.detail.Render(string(p.Emphasis[r]))))
	}
	lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))

	if len(p.AppliedRules) > 0 {
		hits := make([]string, 0, len(p.AppliedRules))
		for _, rule := range p.AppliedRules {
			hits = append(hits, fmt.Sprintf("%q → %s", rule.Keyword, rule.Role.Title()))
		}
		lines = append(lines, s.section.Render(bulletBlock("Matched keywords", hits, s)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
