package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Alturino/storefront/cart/pkg/response"
	"github.com/Alturino/storefront/internal/catalog"
)

var (
	rarityStyles = map[string]lipgloss.Style{
		string(catalog.RarityLegendary): lipgloss.NewStyle().Foreground(lipgloss.Color("#FCEE0A")).Bold(true),
		string(catalog.RarityEpic):      lipgloss.NewStyle().Foreground(lipgloss.Color("#C14BFF")),
		string(catalog.RarityRare):      lipgloss.NewStyle().Foreground(lipgloss.Color("#00C2FF")),
		string(catalog.RarityCommon):    lipgloss.NewStyle().Foreground(lipgloss.Color("#BDBDBD")),
	}
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
	soldOutStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF003C")).Strikethrough(true)
	totalStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#02D7F2"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF003C"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FCEE0A"))
	syncedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF9F"))
	receiptBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func rarity(value string) lipgloss.Style {
	if style, ok := rarityStyles[value]; ok {
		return style
	}
	return rarityStyles[string(catalog.RarityCommon)]
}

// groupThousands renders 34200 as 34,200.
func groupThousands(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	digits := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}

func syncLabel(state string) string {
	switch state {
	case "failed":
		return failedStyle.Render(state)
	case "pending":
		return pendingStyle.Render(state)
	default:
		return syncedStyle.Render(state)
	}
}

func renderCatalog(w io.Writer, entries []response.CatalogEntry) {
	fmt.Fprintln(w, headerStyle.Render("CATALOG"))
	for _, e := range entries {
		name := rarity(e.Rarity).Render(e.Name)
		if e.Status == string(catalog.StatusSoldOut) {
			name = soldOutStyle.Render(e.Name)
		}
		fmt.Fprintf(w, "%3s  %-32s %10s  %s\n", e.ID, name, e.Price, mutedStyle.Render(e.Status))
	}
}

func renderCart(w io.Writer, cart response.Cart) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("CART"), mutedStyle.Render(cart.Identity))
	if len(cart.Items) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  empty"))
	}
	for i, item := range cart.Items {
		fmt.Fprintf(
			w,
			"%3d  %-32s %10s  %s\n",
			i,
			rarity(item.Rarity).Render(item.Name),
			item.Price,
			mutedStyle.Render(item.InstanceID),
		)
	}
	fmt.Fprintf(w, "TOTAL %s  sync %s\n", totalStyle.Render(groupThousands(cart.Total)), syncLabel(cart.SyncState))
}

func renderReceipt(w io.Writer, receipt response.Receipt) {
	lines := []string{
		headerStyle.Render("RECEIPT " + receipt.ID),
		mutedStyle.Render(receipt.PaidAt.Format("2006-01-02 15:04:05")),
	}
	for _, item := range receipt.Items {
		lines = append(lines, fmt.Sprintf("%-32s %10s", rarity(item.Rarity).Render(item.Name), item.Price))
	}
	lines = append(lines,
		fmt.Sprintf("subtotal %s", receipt.Subtotal.StringFixed(0)),
		fmt.Sprintf("tax      %s", receipt.Tax.StringFixed(0)),
		totalStyle.Render(fmt.Sprintf("total    %s", receipt.GrandTotal.StringFixed(0))),
	)
	fmt.Fprintln(w, receiptBorder.Render(strings.Join(lines, "\n")))
}
