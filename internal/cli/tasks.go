package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/watzon/cadence/internal/store"
	"github.com/watzon/cadence/internal/task"
)

// Table formatting constants.
const (
	tasksTableWidth = 110
	nameMaxLen      = 24
	nameTruncLen    = 21
)

var (
	exportOutput  string
	importReplace bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and move task definitions",
	Long: `Work with the task definitions in the data directory.

These commands read and write the data directory directly. Imported tasks
are picked up the next time the scheduler starts.

Commands:
  list    List stored tasks
  export  Write every task to a YAML file
  import  Load tasks from a YAML file`,
}

var listTasksCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tasks",
	RunE:  runListTasks,
}

var exportTasksCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tasks as YAML",
	Long: `Export every stored task, including run statistics, as YAML.

Examples:
  cadence tasks export > tasks.yaml
  cadence tasks export -o backup.yaml`,
	RunE: runExportTasks,
}

var importTasksCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import tasks from YAML",
	Long: `Import tasks from a file written by "cadence tasks export" or by hand.

Entries without an id get a new one. Entries whose id already exists are
skipped unless --replace is given. Every entry is validated before anything
is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportTasks,
}

func init() {
	exportTasksCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
	importTasksCmd.Flags().BoolVar(&importReplace, "replace", false, "Overwrite tasks with the same id")

	tasksCmd.AddCommand(listTasksCmd)
	tasksCmd.AddCommand(exportTasksCmd)
	tasksCmd.AddCommand(importTasksCmd)

	rootCmd.AddCommand(tasksCmd)
}

// taskFile is the document format of export and import.
type taskFile struct {
	Tasks []*task.ScheduledTask `yaml:"tasks"`
}

func runListTasks(cmd *cobra.Command, args []string) error {
	fs, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return err
	}

	tasks, err := fs.LoadTasks(cmd.Context())
	if err != nil {
		return err
	}

	return printTasks(cmd.OutOrStdout(), tasks)
}

func printTasks(w io.Writer, tasks []*task.ScheduledTask) error {
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(w, "No tasks found.")
		return err
	}

	fmt.Fprintf(w, "%-36s  %-24s  %-8s  %-20s  %6s  %s\n", "ID", "NAME", "ENABLED", "NEXT RUN", "RUNS", "SCHEDULE")
	fmt.Fprintln(w, strings.Repeat("-", tasksTableWidth))

	for _, t := range tasks {
		name := t.Name
		if r := []rune(name); len(r) > nameMaxLen {
			name = string(r[:nameTruncLen]) + "..."
		}
		next := "-"
		if t.NextRun != nil {
			next = t.NextRun.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%-36s  %-24s  %-8t  %-20s  %6d  %s\n",
			t.ID, name, t.Enabled, next, t.RunCount, describeSchedule(t.Schedule))
	}

	_, err := fmt.Fprintf(w, "\n%d task(s)\n", len(tasks))
	return err
}

func describeSchedule(s task.Schedule) string {
	switch s.Type {
	case task.ScheduleTypeInterval:
		if s.Interval != nil {
			return fmt.Sprintf("every %d %s", s.Interval.Value, s.Interval.Unit)
		}
	case task.ScheduleTypeCron:
		if s.Timezone != "" {
			return fmt.Sprintf("cron %q (%s)", s.Cron, s.Timezone)
		}
		return fmt.Sprintf("cron %q", s.Cron)
	case task.ScheduleTypeOnce:
		if s.ExecuteAt != nil {
			return "once at " + s.ExecuteAt.Format(time.RFC3339)
		}
	}
	return string(s.Type)
}

func runExportTasks(cmd *cobra.Command, args []string) error {
	fs, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	n, err := exportTasks(cmd.Context(), fs, out)
	if err != nil {
		return err
	}
	if exportOutput != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d task(s) to %s\n", n, exportOutput)
	}
	return nil
}

func exportTasks(ctx context.Context, st store.Store, w io.Writer) (int, error) {
	tasks, err := st.LoadTasks(ctx)
	if err != nil {
		return 0, err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(taskFile{Tasks: tasks}); err != nil {
		return 0, fmt.Errorf("encoding tasks: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	return len(tasks), nil
}

func runImportTasks(cmd *cobra.Command, args []string) error {
	fs, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	res, err := importTasks(cmd.Context(), fs, f, importReplace, time.Now)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d task(s), skipped %d existing\n", res.imported, res.skipped)
	return nil
}

type importResult struct {
	imported int
	skipped  int
}

func importTasks(ctx context.Context, st store.Store, r io.Reader, replace bool, now func() time.Time) (importResult, error) {
	var doc taskFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return importResult{}, nil
		}
		return importResult{}, fmt.Errorf("decoding tasks: %w", err)
	}

	ts := task.Timestamp(now())
	prepared := make([]*task.ScheduledTask, 0, len(doc.Tasks))
	seen := make(map[string]bool, len(doc.Tasks))

	for i, in := range doc.Tasks {
		if in == nil {
			return importResult{}, fmt.Errorf("task %d: empty entry", i+1)
		}
		t, err := prepareImport(in, ts)
		if err != nil {
			return importResult{}, fmt.Errorf("task %d (%s): %w", i+1, in.Name, err)
		}
		if seen[t.ID] {
			return importResult{}, fmt.Errorf("task %d (%s): duplicate id %s", i+1, in.Name, t.ID)
		}
		seen[t.ID] = true
		prepared = append(prepared, t)
	}

	var res importResult
	for _, t := range prepared {
		existing, err := st.LoadTask(ctx, t.ID)
		if err != nil {
			return res, err
		}
		if existing != nil && !replace {
			res.skipped++
			continue
		}
		if err := st.SaveTask(ctx, t); err != nil {
			return res, err
		}
		res.imported++
	}
	return res, nil
}

// prepareImport validates in and fills identity and timestamps. NextRun is
// left for the scheduler to compute when it loads the task.
func prepareImport(in *task.ScheduledTask, now time.Time) (*task.ScheduledTask, error) {
	d := in.Draft()
	if err := d.Normalize(); err != nil {
		return nil, err
	}
	if in.SuccessCount > in.RunCount {
		return nil, fmt.Errorf("%w: successCount %d exceeds runCount %d", task.ErrValidation, in.SuccessCount, in.RunCount)
	}

	t := in.Clone()
	t.Name = d.Name
	t.Description = d.Description
	t.Schedule = d.Schedule
	t.NextRun = nil
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.MCPServers == nil {
		t.MCPServers = []string{}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	} else {
		t.CreatedAt = task.Timestamp(t.CreatedAt)
	}
	t.UpdatedAt = now
	if t.LastRun != nil {
		lr := task.Timestamp(*t.LastRun)
		t.LastRun = &lr
	}
	return t, nil
}
