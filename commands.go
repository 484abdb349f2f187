package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/CrowderSoup/taskcollab/config"
	"github.com/CrowderSoup/taskcollab/models"
)

var errSignedOut = errors.New("not signed in; run `taskcollab login` first")

// signedIn restores the stored session and loads the signed-in view.
func signedIn(ctx context.Context, cfg *config.Config) (*env, error) {
	e, err := build(cfg, false)
	if err != nil {
		return nil, err
	}
	if err := e.app.Init(ctx); err != nil {
		e.Close()
		return nil, err
	}
	if !e.app.Session.IsAuthenticated() {
		e.Close()
		return nil, errSignedOut
	}
	return e, nil
}

func loginCmd(conf func() *config.Config) *cobra.Command {
	var req models.LoginRequest
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := build(conf(), false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.app.Session.Login(cmd.Context(), req); err != nil {
				return err
			}
			u := e.app.Session.User()
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>\n", u.Name, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "account password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func registerCmd(conf func() *config.Config) *cobra.Command {
	var req models.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := build(conf(), false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.app.Session.Register(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s\n", e.app.Session.User().Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Name, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "account password")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := build(conf(), false)
			if err != nil {
				return err
			}
			defer e.Close()
			e.app.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func tasksCmd(conf func() *config.Config) *cobra.Command {
	var f models.Filters
	var status, priority string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := signedIn(cmd.Context(), conf())
			if err != nil {
				return err
			}
			defer e.Close()

			f.Status = models.Status(status)
			f.Priority = models.Priority(priority)
			if err := e.app.SetFilters(cmd.Context(), f); err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), e.app.Tasks.Tasks())
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "pending or completed")
	cmd.Flags().StringVarP(&priority, "priority", "P", "", "Low, Medium or High")
	cmd.Flags().StringVarP(&f.Assignee, "assignee", "a", "", "assignee user id")

	cmd.AddCommand(taskAddCmd(conf), taskDoneCmd(conf), taskRemoveCmd(conf), taskCommentCmd(conf))
	return cmd
}

func taskAddCmd(conf func() *config.Config) *cobra.Command {
	var draft models.TaskDraft
	var priority string
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := signedIn(cmd.Context(), conf())
			if err != nil {
				return err
			}
			defer e.Close()

			draft.Title = strings.Join(args, " ")
			draft.Priority = models.Priority(priority)
			t, err := e.app.CreateTask(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", t.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&draft.Description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&priority, "priority", "P", "", "Low, Medium or High")
	cmd.Flags().StringSliceVarP(&draft.Assignees, "assign", "a", nil, "assignee user ids")
	return cmd
}

func taskDoneCmd(conf func() *config.Config) *cobra.Command {
	var reopen bool
	cmd := &cobra.Command{
		Use:   "done [id]",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := signedIn(cmd.Context(), conf())
			if err != nil {
				return err
			}
			defer e.Close()

			status := models.StatusCompleted
			if reopen {
				status = models.StatusPending
			}
			return e.app.CompleteTask(cmd.Context(), args[0], status)
		},
	}
	cmd.Flags().BoolVar(&reopen, "reopen", false, "mark the task pending again")
	return cmd
}

func taskRemoveCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := signedIn(cmd.Context(), conf())
			if err != nil {
				return err
			}
			defer e.Close()
			return e.app.DeleteTask(cmd.Context(), args[0])
		},
	}
}

func taskCommentCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "comment [id] [text]",
		Short: "Comment on a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := signedIn(cmd.Context(), conf())
			if err != nil {
				return err
			}
			defer e.Close()
			return e.app.AddComment(cmd.Context(), args[0], strings.Join(args[1:], " "))
		},
	}
}

func notificationsCmd(conf func() *config.Config) *cobra.Command {
	var markRead []string
	var readAll, clearRead bool
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"inbox"},
		Short:   "Show and manage notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := signedIn(cmd.Context(), conf())
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			switch {
			case readAll:
				err = e.app.MarkRead(ctx, nil)
			case len(markRead) > 0:
				err = e.app.MarkRead(ctx, markRead)
			}
			if err != nil {
				return err
			}
			if clearRead {
				if err := e.app.ClearRead(ctx); err != nil {
					return err
				}
			}
			printNotifications(cmd.OutOrStdout(), e.app.Notifications.Notifications(), e.app.Notifications.UnreadCount())
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&markRead, "read", nil, "mark these notification ids read")
	cmd.Flags().BoolVar(&readAll, "read-all", false, "mark every notification read")
	cmd.Flags().BoolVar(&clearRead, "clear", false, "delete read notifications")
	return cmd
}

func printTasks(out io.Writer, tasks []models.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tTITLE\tDUE\tASSIGNEES\tCOMMENTS")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = humanize.Time(*t.DueDate)
		}
		names := make([]string, 0, len(t.Assignees))
		for _, a := range t.Assignees {
			if a.Name != "" {
				names = append(names, a.Name)
			} else {
				names = append(names, a.ID)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Status, t.Priority, t.Title, due, strings.Join(names, ", "), humanize.Comma(int64(len(t.Comments))))
	}
	w.Flush()
}

func printNotifications(out io.Writer, list []models.Notification, unread int) {
	fmt.Fprintf(out, "%d unread\n", unread)
	for _, n := range list {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %s  %-12s %s (%s)\n", mark, n.ID, n.Type, n.Message, humanize.Time(n.CreatedAt))
	}
}
