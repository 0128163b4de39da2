// Package cliutil renders API objects for terminal output.
package cliutil

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/management"
)

func RenderBootstrapToken(token *core.BootstrapToken) string {
	return RenderBootstrapTokenList(&management.TokenList{
		Items: []*core.BootstrapToken{token},
	})
}

func RenderBootstrapTokenList(list *management.TokenList) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleColoredDark)
	w.AppendHeader(table.Row{"ID", "TOKEN", "EXPIRES IN", "USES LEFT", "REVOKED", "LABELS"})
	now := time.Now()
	for _, t := range list.Items {
		token := "(hidden)"
		if t.Secret != "" {
			token = t.TokenID + "." + t.Secret
		}
		w.AppendRow(table.Row{
			t.TokenID,
			token,
			t.Metadata.ExpiresAt.Sub(now).Round(time.Second),
			t.UsesRemaining(),
			t.Metadata.Revoked,
			renderLabels(t.Metadata.Labels),
		})
	}
	return w.Render()
}

func RenderNodeList(list *management.NodeList) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleColoredDark)
	w.AppendHeader(table.Row{"ID", "ROLE", "STATUS", "ADDRESS", "JOINED", "LAST SEEN", "LABELS"})
	for _, n := range list.Items {
		lastSeen := "never"
		if !n.LastSeen.IsZero() {
			lastSeen = n.LastSeen.Format(time.RFC3339)
		}
		w.AppendRow(table.Row{
			n.ID,
			n.Role,
			n.Status,
			n.AdvertiseAddress,
			n.JoinedAt.Format(time.RFC3339),
			lastSeen,
			renderLabels(n.Labels),
		})
	}
	return w.Render()
}

func RenderCertChain(chain []management.CertInfo) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleColoredDark)
	w.AppendHeader(table.Row{"SUBJECT", "ISSUER", "CA", "NOT AFTER", "FINGERPRINT"})
	for _, cert := range chain {
		w.AppendRow(table.Row{
			cert.Subject,
			cert.Issuer,
			cert.IsCA,
			cert.NotAfter.Format(time.RFC3339),
			cert.Fingerprint,
		})
	}
	return w.Render()
}

func RenderStatus(status *management.StatusResponse) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleColoredDark)
	w.AppendHeader(table.Row{"READY", "PENDING", "READY NODES", "UNREACHABLE", "ACTIVE TOKENS"})
	w.AppendRow(table.Row{
		status.Ready,
		status.NodeCounts[core.NodeStatusPending],
		status.NodeCounts[core.NodeStatusReady],
		status.NodeCounts[core.NodeStatusUnreachable],
		status.TokenCount,
	})
	return w.Render()
}

func renderLabels(labels map[string]string) string {
	pairs := lo.MapToSlice(labels, func(k, v string) string {
		return fmt.Sprintf("%s=%s", k, v)
	})
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
