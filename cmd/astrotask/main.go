// Command astrotask is a thin CLI demonstrator over the Facade: one
// subcommand per embedder-facing operation, grounded on the teacher's
// cmd/bd cobra wiring (cmd/bd/ready.go, cmd/bd/status.go) but scoped
// down to astrotask's own operation set.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marktoda/astrotask"
	"github.com/marktoda/astrotask/internal/config"
	"github.com/marktoda/astrotask/internal/scheduler"
	"github.com/marktoda/astrotask/internal/types"
)

var cfgOverrides = map[string]interface{}{}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "astrotask",
		Short:         "Local-first task management for coding agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var databaseURI string
	root.PersistentFlags().StringVar(&databaseURI, "db", "", "database URI (overrides config and ASTROTASK_DATABASE_URI)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if databaseURI != "" {
			cfgOverrides["database_uri"] = databaseURI
		}
		return nil
	}

	root.AddCommand(
		newAddCmd(),
		newShowCmd(),
		newListCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newDepCmd(),
		newTreeCmd(),
		newReadyCmd(),
		newNextCmd(),
		newStartCmd(),
		newDoneCmd(),
		newUnlockCmd(),
	)
	return root
}

func openFacade(ctx context.Context) (*astrotask.Facade, error) {
	cfg, err := config.Load(cfgOverrides)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return astrotask.Open(ctx, cfg)
}

func newAddCmd() *cobra.Command {
	var parentID, description string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a new task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFacade(cmd.Context())
			if err != nil {
				return err
			}
			defer f.Close()
			task, err := f.AddTask(cmd.Context(), astrotask.TaskDraft{
				Title:       args[0],
				ParentID:    parentID,
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), task.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "parent task id")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFacade(cmd.Context())
			if err != nil {
				return err
			}
			defer f.Close()
			task, err := f.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTaskDetail(task))
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var parentID string
	var includeRoot bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFacade(cmd.Context())
			if err != nil {
				return err
			}
			defer f.Close()
			filter := astrotask.ListTasksFilter{IncludeProjectRoot: includeRoot}
			if parentID != "" {
				filter.HasParentFilter = true
				filter.ParentID = parentID
			}
			tasks, err := f.ListTasks(cmd.Context(), filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTaskTable(tasks))
			return nil
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "only list direct children of this task")
	cmd.Flags().BoolVar(&includeRoot, "include-root", false, "include the synthetic project root")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var title, description, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFacade(cmd.Context())
			if err != nil {
				return err
			}
			defer f.Close()
			updates := map[string]interface{}{}
			if title != "" {
				updates["title"] = title
			}
			if description != "" {
				updates["description"] = description
			}
			if len(updates) > 0 {
				if _, err := f.UpdateTask(cmd.Context(), args[0], updates); err != nil {
					return err
				}
			}
			if status != "" {
				if _, err := f.UpdateTaskStatus(cmd.Context(), args[0], astrotask.Status(status)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "new status (pending, in-progress, done, cancelled, archived)")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a leaf task with no dependents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFacade(cmd.Context())
			if err != nil {
				return err
			}
			defer f.Close()
			return f.DeleteTask(cmd.Context(), args[0])
		},
	}
}

func newDepCmd() *cobra.Command {
	dep := &cobra.Command{Use: "dep", Short: "Manage task dependencies"}
	dep.AddCommand(&cobra.Command{
		Use:   "add <dependent> <dependency>",
		Short: "Record that <dependent> depends on <dependency>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFacade(cmd.Context())
			if err != nil {
				return err
			}
			defer f.Close()
			return f.AddTaskDependency(cmd.Context(), args[0], args[1])
		},
	})
	dep.AddCommand(&cobra.Command{
		Use:   "remove <dependent> <dependency>",
		Short: "Remove a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFacade(cmd.Context())
			if err != nil {
				return err
			}
			defer f.Close()
			return f.RemoveTaskDependency(cmd.Context(), args[0], args[1])
		},
	})
	return dep
}

func newTreeCmd() *cobra.Command {
	var rootID string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Render the task tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFacade(cmd.Context())
			if err != nil {
				return err
			}
			defer f.Close()
			if rootID == "" {
				rootID = types.ProjectRootID
			}
			t, err := f.Tree(cmd.Context(), rootID)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTree(t, 0))
			return nil
		},
	}
	cmd.Flags().StringVar(&rootID, "root", "", "root task id (defaults to the project root)")
	return cmd
}

func newReadyCmd() *cobra.Command {
	var includeBlocked bool
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "List unblocked, pending tasks available to start",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFacade(cmd.Context())
			if err != nil {
				return err
			}
			defer f.Close()
			nodes, err := f.GetAvailableTasks(cmd.Context(), scheduler.Filter{Status: types.StatusPending, IncludeBlocked: includeBlocked})
			if err != nil {
				return err
			}
			tasks := make([]*types.Task, 0, len(nodes))
			for _, n := range nodes {
				task := n.Task()
				tasks = append(tasks, &task)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTaskTable(tasks))
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeBlocked, "include-blocked", false, "include tasks with unmet dependencies")
	return cmd
}

func newNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the single best next task to work on",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFacade(cmd.Context())
			if err != nil {
				return err
			}
			defer f.Close()
			node, err := f.GetNextTask(cmd.Context(), scheduler.Filter{})
			if err != nil {
				return err
			}
			if node == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no available task")
				return nil
			}
			task := node.Task()
			fmt.Fprintln(cmd.OutOrStdout(), renderTaskDetail(&task))
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Mark a task in-progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFacade(cmd.Context())
			if err != nil {
				return err
			}
			defer f.Close()
			return f.StartWork(cmd.Context(), args[0], force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "start even if the task is blocked")
	return cmd
}

func newDoneCmd() *cobra.Command {
	var cascade, autoStart bool
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFacade(cmd.Context())
			if err != nil {
				return err
			}
			defer f.Close()
			result, err := f.CompleteTask(cmd.Context(), args[0], cascade, autoStart)
			if err != nil {
				return err
			}
			if len(result.CascadedIDs) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "cascaded: %v\n", result.CascadedIDs)
			}
			if result.AutoStartedID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "auto-started: %s\n", result.AutoStartedID)
			}
			if len(result.UnblockedDependents) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "unblocked: %v\n", result.UnblockedDependents)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "also mark incomplete descendants done")
	cmd.Flags().BoolVar(&autoStart, "auto-start", false, "auto-start the next available task: a child first, else one under the parent, else under the project root")
	return cmd
}

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force-unlock <database-uri>",
		Short: "Remove a stale advisory lock file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return astrotask.ForceUnlock(args[0])
		},
	}
}
