package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/zipbuilder/internal/client/client"
	"github.com/dmitrijs2005/zipbuilder/internal/client/config"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
)

// JobClient is the subset of client.GRPCClient the CLI uses.
type JobClient interface {
	Submit(ctx context.Context, manifestURL string) (*models.Job, error)
	GetStatus(ctx context.Context, taskKey string) (*models.Job, error)
	Wait(ctx context.Context, taskKey string, interval time.Duration, onUpdate func(*models.Job)) (*models.Job, error)
	Close() error
}

type App struct {
	config *config.Config
	client JobClient
	out    io.Writer
}

func NewApp(c *config.Config) (*App, error) {
	apiClient, err := client.NewJobClient(c.ServerEndpointAddr)
	if err != nil {
		return nil, err
	}
	return NewAppWithClient(c, apiClient, os.Stdout), nil
}

func NewAppWithClient(c *config.Config, jc JobClient, out io.Writer) *App {
	return &App{config: c, client: jc, out: out}
}

// Run executes the command in args (os.Args[1:] style, global flags allowed)
// and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	defer a.client.Close()

	parts := positional(args)
	if len(parts) == 0 {
		a.usage()
		return 2
	}

	cmd, rest := parts[0], parts[1:]
	if cmd == "help" {
		a.usage()
		return 0
	}
	if len(rest) != 1 {
		fmt.Fprintf(a.out, "Usage: %s <%s>\n", cmd, argName(cmd))
		return 2
	}

	var err error
	switch cmd {
	case "submit":
		err = a.submit(ctx, rest[0])
	case "status":
		err = a.status(ctx, rest[0])
	case "wait":
		err = a.wait(ctx, rest[0])
	case "build":
		err = a.build(ctx, rest[0])
	default:
		fmt.Fprintln(a.out, "Unknown command:", cmd)
		a.usage()
		return 2
	}

	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return 1
	}
	return 0
}

func (a *App) submit(ctx context.Context, manifestURL string) error {
	job, err := a.client.Submit(ctx, manifestURL)
	if err != nil {
		return err
	}
	printJob(a.out, job)
	return nil
}

func (a *App) status(ctx context.Context, taskKey string) error {
	job, err := a.client.GetStatus(ctx, taskKey)
	if err != nil {
		return err
	}
	printJob(a.out, job)
	return nil
}

func (a *App) wait(ctx context.Context, taskKey string) error {
	if a.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.WaitTimeout)
		defer cancel()
	}

	job, err := a.client.Wait(ctx, taskKey, a.config.PollInterval, func(j *models.Job) {
		fmt.Fprintln(a.out, progressLine(j))
	})
	if err != nil {
		if errors.Is(err, client.ErrJobFailed) {
			return err
		}
		return fmt.Errorf("waiting for %s: %w", taskKey, err)
	}

	fmt.Fprintln(a.out, job.Result)
	return nil
}

func (a *App) build(ctx context.Context, manifestURL string) error {
	job, err := a.client.Submit(ctx, manifestURL)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "task_key:", job.TaskKey)
	return a.wait(ctx, job.TaskKey)
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "Usage: zipbuilder-cli [-a addr] [-i interval] [-t timeout] <command> <arg>")
	fmt.Fprintln(a.out, "Available commands: build <manifest-url>, submit <manifest-url>, status <task-key>, wait <task-key>")
}

func argName(cmd string) string {
	switch cmd {
	case "submit", "build":
		return "manifest-url"
	}
	return "task-key"
}

func progressLine(j *models.Job) string {
	var b strings.Builder
	b.WriteString(string(j.Status))
	if j.Progress != nil {
		fmt.Fprintf(&b, " %s %d/%d", j.Progress.Stage, j.Progress.Done, j.Progress.Total)
	}
	if j.Retries > 0 {
		fmt.Fprintf(&b, " (retry %d)", j.Retries)
	}
	return b.String()
}

func printJob(w io.Writer, j *models.Job) {
	fmt.Fprintf(w, "task_key: %s\n", j.TaskKey)
	fmt.Fprintf(w, "task_id: %s\n", j.TaskID)
	fmt.Fprintf(w, "status: %s\n", j.Status)
	if j.Progress != nil {
		fmt.Fprintf(w, "progress: %s %d/%d\n", j.Progress.Stage, j.Progress.Done, j.Progress.Total)
	}
	if j.Retries > 0 {
		fmt.Fprintf(w, "retries: %d\n", j.Retries)
	}
	if j.Result != "" {
		fmt.Fprintf(w, "result: %s\n", j.Result)
	}
	if j.Error != "" {
		fmt.Fprintf(w, "error: %s\n", j.Error)
	}
}
