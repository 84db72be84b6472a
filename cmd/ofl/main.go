package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orderflow/internal/config"
	"orderflow/internal/db"
	"orderflow/internal/domain"
	"orderflow/internal/engine"
	"orderflow/internal/events"
	"orderflow/internal/folders"
	"orderflow/internal/migrate"
	"orderflow/internal/server"
	"orderflow/internal/store"
	"orderflow/internal/timeclock"
)

var rootCmd = &cobra.Command{
	Use:   "ofl",
	Short: "Orderflow CLI",
	Long: `Orderflow tracks projects and their work orders through a QA-gated lifecycle.
- Project: a container with an accountable actor; Active until explicitly finished.
- Work order: a unit of work under a project; Open -> InProgress -> InQA -> Approved,
  with Rework sending it back and Cancel available from any non-terminal state.
- Time: start/pause/finish stretches are accumulated per work order; 'wo show'
  includes the running stretch without writing it back.
- Event log: every transition is recorded, view with 'ofl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ORDERFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(woCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func actorID() string {
	return viper.GetString("actor-id")
}

// withEngine opens the workspace database, migrates it, and hands a ready
// engine to fn.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	var svc folders.Service = folders.Disabled{}
	if cfg.Folders.ServiceURL != "" {
		svc = folders.NewHTTPService(cfg.Folders.ServiceURL)
	}
	e := engine.New(store.NewSQLite(conn), svc, cfg)
	return fn(ctx, e)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectFinishCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var channel, title, deliverables, kpi, due, accountable string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
					ActorID:            actorID(),
					ChannelRef:         channel,
					Title:              title,
					Deliverables:       deliverables,
					KPI:                kpi,
					DueDate:            due,
					AccountableActorID: accountable,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel reference")
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&deliverables, "deliverables", "", "deliverables")
	cmd.Flags().StringVar(&kpi, "kpi", "", "key performance indicator")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&accountable, "accountable", "", "accountable actor id")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListActiveProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Due", "Accountable"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.DueDate, p.AccountableActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update project fields",
		Args:  cobra.ExactArgs(1),
	}
	title := cmd.Flags().String("title", "", "project title")
	deliverables := cmd.Flags().String("deliverables", "", "deliverables")
	kpi := cmd.Flags().String("kpi", "", "key performance indicator")
	due := cmd.Flags().String("due", "", "due date (YYYY-MM-DD)")
	accountable := cmd.Flags().String("accountable", "", "accountable actor id")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts := engine.ProjectUpdateOptions{ActorID: actorID()}
		if cmd.Flags().Changed("title") {
			opts.Title = title
		}
		if cmd.Flags().Changed("deliverables") {
			opts.Deliverables = deliverables
		}
		if cmd.Flags().Changed("kpi") {
			opts.KPI = kpi
		}
		if cmd.Flags().Changed("due") {
			opts.DueDate = due
		}
		if cmd.Flags().Changed("accountable") {
			opts.AccountableActorID = accountable
		}
		return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
			p, err := e.UpdateProject(ctx, args[0], opts)
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		})
	}
	return cmd
}

func projectFinishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finish <project-id>",
		Short: "Finish project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.FinishProject(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func woCmd() *cobra.Command {
	wo := &cobra.Command{Use: "wo", Short: "Manage work orders"}
	wo.AddCommand(woCreateCmd())
	wo.AddCommand(woListCmd())
	wo.AddCommand(woShowCmd())
	wo.AddCommand(woUpdateCmd())
	wo.AddCommand(woTransitionCmd("start", "Start working", engine.Engine.StartWorkOrder))
	wo.AddCommand(woTransitionCmd("pause", "Pause and bank elapsed time", engine.Engine.PauseWorkOrder))
	wo.AddCommand(woTransitionCmd("finish", "Finish and submit to QA", engine.Engine.FinishWorkOrder))
	wo.AddCommand(woTransitionCmd("approve", "Approve a QA submission", engine.Engine.ApproveWorkOrder))
	wo.AddCommand(woTransitionCmd("rework", "Send back for rework", engine.Engine.ReworkWorkOrder))
	wo.AddCommand(woTransitionCmd("cancel", "Cancel the work order", engine.Engine.CancelWorkOrder))
	return wo
}

func woCreateCmd() *cobra.Command {
	var project, thread, title, deliverables, pushTo string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create work order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CreateWorkOrder(ctx, engine.WorkOrderCreateOptions{
					ActorID:         actorID(),
					ProjectID:       project,
					ThreadRef:       thread,
					Title:           title,
					Deliverables:    deliverables,
					PushedToActorID: pushTo,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "parent project id")
	cmd.Flags().StringVar(&thread, "thread", "", "thread reference")
	cmd.Flags().StringVar(&title, "title", "", "work order title")
	cmd.Flags().StringVar(&deliverables, "deliverables", "", "deliverables")
	cmd.Flags().StringVar(&pushTo, "push-to", "", "actor to push the work order to")
	return cmd
}

func woListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List in-progress work orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListInProgressWorkOrders(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Worker", "Time"})
				for _, w := range items {
					tw.AppendRow(table.Row{
						w.ID,
						w.Title,
						deref(w.InProgressActorID),
						timeclock.FormatHoursMinutes(e.DisplayedSeconds(w)),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func woShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <work-order-id>",
		Short: "Show work order with elapsed time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.GetWorkOrder(ctx, args[0])
				if err != nil {
					return err
				}
				displayed := e.DisplayedSeconds(w)
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"work_order":        w,
						"displayed_seconds": displayed,
						"displayed_hours":   timeclock.FormatHoursMinutes(displayed),
					})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRow(table.Row{"ID", w.ID})
				tw.AppendRow(table.Row{"Project", w.ProjectID})
				tw.AppendRow(table.Row{"Title", w.Title})
				tw.AppendRow(table.Row{"Status", string(w.Status)})
				tw.AppendRow(table.Row{"Pushed to", deref(w.PushedToActorID)})
				tw.AppendRow(table.Row{"Worker", deref(w.InProgressActorID)})
				tw.AppendRow(table.Row{"Time", timeclock.FormatHoursMinutes(displayed)})
				tw.Render()
				return nil
			})
		},
	}
}

func woUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <work-order-id>",
		Short: "Update work order fields",
		Args:  cobra.ExactArgs(1),
	}
	title := cmd.Flags().String("title", "", "work order title")
	deliverables := cmd.Flags().String("deliverables", "", "deliverables")
	pushTo := cmd.Flags().String("push-to", "", "actor to push the work order to (empty clears)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts := engine.WorkOrderUpdateOptions{ActorID: actorID()}
		if cmd.Flags().Changed("title") {
			opts.Title = title
		}
		if cmd.Flags().Changed("deliverables") {
			opts.Deliverables = deliverables
		}
		if cmd.Flags().Changed("push-to") {
			opts.PushedToActorID = pushTo
		}
		return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
			w, err := e.UpdateWorkOrder(ctx, args[0], opts)
			if err != nil {
				return err
			}
			return printJSONOrTable(w)
		})
	}
	return cmd
}

func woTransitionCmd(verb, short string, fn func(engine.Engine, context.Context, string, string) (domain.WorkOrder, error)) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <work-order-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := fn(e, ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	var after int64
	var limit int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := events.After(ctx, e.Store, after, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "TS", "Type", "Entity", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{
						strconv.FormatInt(evt.Seq, 10),
						evt.TS,
						evt.Type,
						evt.EntityKind + "/" + evt.EntityID,
						evt.ActorID,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().Int64Var(&after, "after", 0, "only events after this sequence number")
	tail.Flags().IntVar(&limit, "limit", 50, "maximum events")
	lg.AddCommand(tail)
	return lg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			var svc folders.Service = folders.Disabled{}
			if cfg.Folders.ServiceURL != "" {
				svc = folders.NewHTTPService(cfg.Folders.ServiceURL)
			}
			e := engine.New(store.NewSQLite(conn), svc, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:        cfg.Auth.JWTSecret,
				AllowActorHeader: cfg.Auth.AllowActorHeader,
			}
			if secret := os.Getenv("ORDERFLOW_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Orderflow API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path")
	return cmd
}
