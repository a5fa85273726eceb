package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperdag-network/repid/internal/config"
	"github.com/hyperdag-network/repid/internal/domain"
)

// ─── Client commands ────────────────────────────────────────────────────────
// These talk to a running daemon over its HTTP API, so operators can inspect
// and adjust scores without crafting curl invocations.

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(summaryCmd)

	leaderboardCmd.Flags().IntP("limit", "n", 10, "Number of agents to show")
	resetCmd.Flags().Float64("score", 0, "Score to reset to (default: engine default)")
}

// ─── get ────────────────────────────────────────────────────────────────────

var getCmd = &cobra.Command{
	Use:   "get AGENT_ID",
	Short: "Print an agent's current RepID",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	var body struct {
		AgentID string  `json:"agent_id"`
		RepID   float64 `json:"repid"`
	}
	if err := apiGet("/api/agents/"+args[0]+"/repid", &body); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s: %.2f\n", body.AgentID, body.RepID)
	return nil
}

// ─── stats ──────────────────────────────────────────────────────────────────

var statsCmd = &cobra.Command{
	Use:   "stats AGENT_ID",
	Short: "Show aggregate statistics for an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	var stats domain.AgentStats
	if err := apiGet("/api/agents/"+args[0]+"/stats", &stats); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Agent:            %s\n", stats.AgentID)
	fmt.Fprintf(os.Stdout, "RepID:            %.2f (%s)\n", stats.CurrentRepID, stats.Tier)
	fmt.Fprintf(os.Stdout, "Average RepID:    %.2f\n", stats.AvgRepID)
	fmt.Fprintf(os.Stdout, "Validations:      %d\n", stats.TotalValidations)
	fmt.Fprintf(os.Stdout, "Correct rate:     %.1f%% (recent %.1f%%)\n",
		stats.CorrectRate*100, stats.RecentCorrectRate*100)
	fmt.Fprintf(os.Stdout, "Trend:            %s\n", stats.Trend)
	if stats.IsRecovering {
		fmt.Fprintln(os.Stdout, "Recovering:       yes")
	}
	return nil
}

// ─── leaderboard ────────────────────────────────────────────────────────────

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the top agents by RepID",
	RunE:  runLeaderboard,
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	var entries []domain.LeaderboardEntry
	if err := apiGet("/api/leaderboard?limit="+strconv.Itoa(limit), &entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "No agents tracked yet.")
		return nil
	}

	for i, e := range entries {
		fmt.Fprintf(os.Stdout, "%3d. %-24s %8.2f\n", i+1, e.AgentID, e.RepID)
	}
	return nil
}

// ─── reset ──────────────────────────────────────────────────────────────────

var resetCmd = &cobra.Command{
	Use:   "reset AGENT_ID",
	Short: "Clear an agent's history and reset its RepID",
	Args:  cobra.ExactArgs(1),
	RunE:  runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	payload := map[string]interface{}{}
	if cmd.Flags().Changed("score") {
		score, _ := cmd.Flags().GetFloat64("score")
		payload["new_score"] = score
	}

	var body struct {
		AgentID string  `json:"agent_id"`
		RepID   float64 `json:"repid"`
	}
	if err := apiPost("/api/agents/"+args[0]+"/reset", payload, &body); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s reset to %.2f\n", body.AgentID, body.RepID)
	return nil
}

// ─── summary ────────────────────────────────────────────────────────────────

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show population-level engine aggregates",
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	var summary domain.EngineSummary
	if err := apiGet("/api/summary", &summary); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Agents:        %d\n", summary.AgentCount)
	fmt.Fprintf(os.Stdout, "Mean RepID:    %.2f\n", summary.MeanRepID)
	fmt.Fprintf(os.Stdout, "Updates:       %d\n", summary.TotalUpdates)
	return nil
}

// ─── HTTP helpers ───────────────────────────────────────────────────────────

func apiBase() (string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	return "http://" + net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port)), nil
}

func apiGet(path string, out interface{}) error {
	base, err := apiBase()
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(base + path)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	return decodeResponse(resp, out)
}

func apiPost(path string, payload, out interface{}) error {
	base, err := apiBase()
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(base+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
