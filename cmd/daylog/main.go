package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/tj/go-naturaldate"

	"github.com/christopherklint97/daylog/internal/config"
	"github.com/christopherklint97/daylog/internal/scheduler"
	"github.com/christopherklint97/daylog/internal/server"
	"github.com/christopherklint97/daylog/internal/service"
	"github.com/christopherklint97/daylog/internal/store"
	"github.com/christopherklint97/daylog/internal/tui"
)

var (
	dateFlag  string
	debugFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "daylog",
	Short: "Turn your day's activity into time-tracking entries",
	Long:  "daylog collects calendar and code-host activity for a day, buckets it by hour, and suggests time entries you can review and submit.",
}

var dayCmd = &cobra.Command{
	Use:   "day",
	Short: "Print the hourly activity timeline for a day",
	RunE:  runDay,
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review and submit suggested time entries interactively",
	RunE:  runReview,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE:  runServe,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the end-of-day reminder",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running reminder",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local submission journal for a day",
	RunE:  runStatus,
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List time-tracking projects",
	RunE:  runProjects,
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Manage the Microsoft Graph calendar and mail source",
}

var graphAuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in to Microsoft Graph with a device code",
	RunE:  runGraphAuth,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Open config file in your editor",
	RunE:  runConfig,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Log debug output to stderr")
	for _, c := range []*cobra.Command{dayCmd, reviewCmd, statusCmd} {
		c.Flags().StringVar(&dateFlag, "date", "", `Day to use: YYYY-MM-DD or phrases like "yesterday" (default today)`)
	}

	rootCmd.AddCommand(dayCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(configCmd)

	graphCmd.AddCommand(graphAuthCmd)
	rootCmd.AddCommand(graphCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveDate turns the --date flag into YYYY-MM-DD in loc.
func resolveDate(s string, now time.Time, loc *time.Location) (string, error) {
	now = now.In(loc)
	s = strings.TrimSpace(s)
	if s == "" {
		return now.Format("2006-01-02"), nil
	}
	if service.ValidDate(s) {
		return s, nil
	}
	t, err := naturaldate.Parse(s, now, naturaldate.WithDirection(naturaldate.Past))
	if err != nil {
		return "", fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t.In(loc).Format("2006-01-02"), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runDay(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, debugFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	date, err := resolveDate(dateFlag, time.Now(), a.svc.Location())
	if err != nil {
		return err
	}

	day, err := a.svc.FetchDay(ctx, date, "")
	if err != nil {
		return err
	}

	printDay(os.Stdout, day)
	return nil
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, debugFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	date, err := resolveDate(dateFlag, time.Now(), a.svc.Location())
	if err != nil {
		return err
	}
	return a.review(date)
}

func (a *app) review(date string) error {
	model := tui.NewApp(a.newController(), a.svc, date)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}

	result := model.GetResult()
	switch {
	case result == nil:
	case result.Skipped:
		fmt.Println("Review skipped.")
	default:
		ok := 0
		for _, r := range result.Results {
			if r.Success {
				ok++
			}
		}
		fmt.Printf("Submitted %d of %d entries.\n", ok, len(result.Results))
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, debugFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Config{
		Addr:           a.cfg.Server.Addr,
		APIToken:       a.cfg.Server.APIToken,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	}, a.svc, a.logger)

	fmt.Printf("Listening on %s\n", a.cfg.Server.Addr)
	return srv.ListenAndServe(ctx)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, debugFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.New(a.cfg, a.svc, func(ctx context.Context, date string) error {
		return a.review(date)
	}, a.svc.Location(), a.logger)

	return sched.Run(ctx)
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, err := scheduler.ReadPID()
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending stop signal: %w", err)
	}

	fmt.Printf("Sent stop signal to daylog (PID %d)\n", pid)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	date, err := resolveDate(dateFlag, time.Now(), loc)
	if err != nil {
		return err
	}

	db, err := store.Open()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	entries, err := db.GetEntriesForDate(date)
	if err != nil {
		return fmt.Errorf("fetching entries for %s: %w", date, err)
	}

	printJournal(os.Stdout, date, entries)
	return nil
}

func runProjects(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, debugFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	projects, err := a.svc.Projects(ctx)
	if err != nil {
		return fmt.Errorf("fetching projects: %w", err)
	}

	if len(projects) == 0 {
		fmt.Println("No projects found.")
		return nil
	}

	fmt.Printf("Found %d projects:\n\n", len(projects))
	for _, p := range projects {
		fmt.Printf("  %-8s %-10s %s\n", p.ID, p.Code, p.Name)
	}

	return nil
}

func runGraphAuth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Graph.ClientID == "" {
		return fmt.Errorf("set [graph] client_id or MSGRAPH_CLIENT_ID first")
	}

	ctx, cancel := signalContext()
	defer cancel()

	auth, err := newGraphAuth(cfg, newLogger(debugFlag))
	if err != nil {
		return err
	}
	if err := auth.Login(ctx, func(msg string) { fmt.Println(msg) }); err != nil {
		return fmt.Errorf("signing in: %w", err)
	}
	fmt.Println("Signed in to Microsoft Graph.")
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.WriteDefault(configPath); err != nil {
			return err
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	fmt.Printf("Opening %s with %s...\n", configPath, editor)

	proc := os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
	}
	bin, err := exec.LookPath(editor)
	if err != nil {
		fmt.Printf("Could not find %s. Config file is at: %s\n", editor, configPath)
		return nil
	}
	process, err := os.StartProcess(bin, []string{editor, configPath}, &proc)
	if err != nil {
		fmt.Printf("Could not open editor. Config file is at: %s\n", configPath)
		return nil
	}
	_, err = process.Wait()
	return err
}
