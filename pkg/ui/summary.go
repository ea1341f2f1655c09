package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"igleads/pkg/accounts"
	"igleads/pkg/scraper"
)

// RunSummary renders the outcome of a scrape run as a bordered panel
func RunSummary(res *scraper.Result) string {
	if res == nil {
		return panelStyle.Render(dimStyle.Render("no result"))
	}

	var b strings.Builder
	status := successStyle.Render("complete")
	if res.IsPartial {
		status = warningStyle.Render("partial")
	}
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Target:"), valueStyle.Render(res.Target))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Account:"), valueStyle.Render(orDash(res.Account)))
	fmt.Fprintf(&b, "%s %s %s\n", labelStyle.Render("Leads:"),
		valueStyle.Render(fmt.Sprintf("%d/%d (%.0f%%)", res.Collected, res.Requested, res.CompletionRate*100)),
		status)
	if res.AbortReason != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Aborted:"), errorStyle.Render(res.AbortReason))
	}
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Duration:"), valueStyle.Render(res.Duration().Round(time.Second).String()))

	if len(res.Hashtags) > 0 {
		b.WriteString("\n")
		b.WriteString(highlightStyle.Render("Hashtags"))
		for _, rep := range res.Hashtags {
			name := rep.Hashtag
			if name == "" {
				name = "explore"
			} else {
				name = "#" + name
			}
			line := fmt.Sprintf("%-24s %3d leads  %3d clicks", name, rep.Collected, rep.Stats.Clicks)
			if rep.Stats.StopReason != "" {
				line += "  " + string(rep.Stats.StopReason)
			}
			b.WriteString("\n")
			switch {
			case rep.Error != "":
				b.WriteString(errorStyle.Render(line + "  " + string(rep.Action)))
			case rep.Completed:
				b.WriteString(line)
			default:
				b.WriteString(dimStyle.Render(line))
			}
		}
	}

	m := res.Resilience
	if m.TotalErrors > 0 {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "%s %s", labelStyle.Render("Errors:"),
			valueStyle.Render(fmt.Sprintf("%d total, delay x%.2f", m.TotalErrors, m.AdaptiveDelayMultiplier)))
	}

	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// LeadTable renders the collected leads, one row each
func LeadTable(res *scraper.Result) string {
	if res == nil || len(res.Profiles) == 0 {
		return dimStyle.Render("no leads")
	}
	rows := make([]string, 0, len(res.Profiles)+1)
	rows = append(rows, labelStyle.Render(fmt.Sprintf("%-30s %10s  %-8s %s", "USERNAME", "FOLLOWERS", "SOURCE", "CONTACT")))
	for _, lead := range res.Profiles {
		contact := lead.Contact.Email
		if contact == "" {
			contact = lead.Contact.Phone
		}
		if contact == "" {
			contact = lead.Contact.Website
		}
		rows = append(rows, fmt.Sprintf("%-30s %10d  %-8s %s",
			"@"+lead.Username, lead.FollowerCount, truncate(lead.SourceHashtag, 8), orDash(contact)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// AccountTable renders the account pool with failure state and cooldowns
func AccountTable(list []accounts.Account, current int, ipCooldown time.Duration, now time.Time) string {
	sorted := append([]accounts.Account(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	rows := []string{labelStyle.Render(fmt.Sprintf("  %-3s %-24s %-20s %-8s %s", "ID", "USERNAME", "HANDLE", "FAILURES", "STATUS"))}
	for _, acc := range sorted {
		marker := "  "
		if acc.ID == current {
			marker = "* "
		}
		status := successStyle.Render("ready")
		if wait := acc.CooldownRemaining(now); wait > 0 {
			status = warningStyle.Render("cooldown " + wait.Round(time.Second).String())
		} else if acc.IsBlocked {
			status = dimStyle.Render("released")
		}
		row := fmt.Sprintf("%s%-3d %-24s %-20s %-8d ", marker, acc.ID, acc.Username, truncate(orDash(acc.Handle), 20), acc.FailureCount)
		rows = append(rows, row+status)
	}
	if ipCooldown > 0 {
		rows = append(rows, "", warningStyle.Render("IP cooldown "+ipCooldown.Round(time.Second).String()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
