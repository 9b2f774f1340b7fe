package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/pathwise/internal/model"
)

var (
	onboardIndustry    string
	onboardSubIndustry string
	onboardExperience  int
	onboardBio         string
	onboardSkills      []string
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Onboard the acting user into an industry",
	Long: "Resolves the shared insight for the chosen industry (generating it if needed), " +
		"then saves the user's profile. Prints the result as JSON.",
	RunE: runOnboard,
}

func init() {
	onboardCmd.Flags().StringVar(&onboardIndustry, "industry", "", "industry, e.g. tech")
	onboardCmd.Flags().StringVar(&onboardSubIndustry, "sub-industry", "", "sub-industry, e.g. \"Software Development\"")
	onboardCmd.Flags().IntVar(&onboardExperience, "experience", 0, "years of experience")
	onboardCmd.Flags().StringVar(&onboardBio, "bio", "", "short professional bio")
	onboardCmd.Flags().StringSliceVar(&onboardSkills, "skills", nil, "comma-separated skills")
	onboardCmd.MarkFlagRequired("industry")
	rootCmd.AddCommand(onboardCmd)
}

func runOnboard(cmd *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	industryKey := model.FormatIndustryKey(onboardIndustry, onboardSubIndustry)
	res, err := a.orchestrator.Onboard(ctx, resolveUser(), industryKey, model.ProfileFields{
		Experience: onboardExperience,
		Bio:        onboardBio,
		Skills:     onboardSkills,
	})
	if err != nil {
		return err
	}

	return printJSON(res)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
