package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/amishk599/pathwise/internal/insight"
	"github.com/amishk599/pathwise/internal/model"
	"github.com/amishk599/pathwise/internal/store"
)

var insightDryRun bool

var insightCmd = &cobra.Command{
	Use:   "insight",
	Short: "Read industry insights",
}

var insightGetCmd = &cobra.Command{
	Use:   "get [industry-key]",
	Short: "Get the insight for an industry, generating it if missing or stale",
	Long: "Prints the insight for industry-key as JSON. Without an argument, prints the insight " +
		"for the acting user's industry. --dry-run generates without reading or writing the store.",
	Args: cobra.MaximumNArgs(1),
	RunE: runInsightGet,
}

var insightListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored industry insights and their freshness",
	RunE:  runInsightList,
}

func init() {
	insightGetCmd.Flags().BoolVar(&insightDryRun, "dry-run", false, "generate without touching the store")
	insightCmd.AddCommand(insightGetCmd, insightListCmd)
	rootCmd.AddCommand(insightCmd)
}

func runInsightGet(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stderr, debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if insightDryRun {
		if len(args) == 0 {
			return errors.New("--dry-run needs an industry key")
		}
		logger.Info("dry-run mode enabled, nothing will be persisted")
		cache := insight.NewCache(store.NewNopInsightStore(), setupGenerator(cfg, logger), logger,
			insight.WithGenerationTimeout(cfg.Insights.GenerationTimeout),
		)
		rec, err := cache.GetOrCreate(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	}

	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var rec model.IndustryInsight
	if len(args) == 1 {
		rec, err = a.cache.GetOrCreate(ctx, args[0])
	} else {
		rec, err = a.orchestrator.Insights(ctx, resolveUser())
	}
	if err != nil && !(errors.Is(err, model.ErrPersistenceFailed) && rec.IndustryKey != "") {
		return err
	}
	if err != nil {
		logger.Warn("insight generated but not stored", "error", err)
	}
	return printJSON(rec)
}

var (
	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))
	freshStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	staleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func runInsightList(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stderr, debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.insights.List(context.Background())
	if err != nil {
		return fmt.Errorf("list insights: %w", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].IndustryKey < records[j].IndustryKey })

	fmt.Println(renderInsightTable(records, time.Now()))
	return nil
}

// renderInsightTable formats records as an aligned table with a freshness column.
func renderInsightTable(records []model.IndustryInsight, now time.Time) string {
	keyWidth := len("Industry")
	for _, r := range records {
		keyWidth = max(keyWidth, len(r.IndustryKey))
	}
	col := func(w int) lipgloss.Style { return lipgloss.NewStyle().Width(w + 2) }

	var b strings.Builder
	b.WriteString(tableHeaderStyle.Render(
		col(keyWidth).Render("Industry") +
			col(8).Render("Demand") +
			col(10).Render("Outlook") +
			col(7).Render("Status") +
			"Next update",
	))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", keyWidth+2+10+12+9+16)))
	b.WriteString("\n")

	fresh := 0
	for _, r := range records {
		status := staleStyle.Render("stale")
		if r.IsFresh(now) {
			status = freshStyle.Render("fresh")
			fresh++
		}
		b.WriteString(col(keyWidth).Render(r.IndustryKey))
		b.WriteString(col(8).Render(string(r.Payload.DemandLevel)))
		b.WriteString(col(10).Render(string(r.Payload.MarketOutlook)))
		b.WriteString(col(7).Render(status))
		b.WriteString(r.NextUpdate.Local().Format("2006-01-02 15:04"))
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("\nTotal: %d industries (%d fresh, %d stale)", len(records), fresh, len(records)-fresh))
	return b.String()
}
