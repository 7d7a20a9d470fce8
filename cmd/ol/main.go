package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orderline/internal/app"
	"orderline/internal/config"
	"orderline/internal/db"
	"orderline/internal/domain"
	"orderline/internal/migrate"
	"orderline/internal/repo"
	"orderline/internal/server"
	"orderline/internal/taskhub"
	"orderline/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "ol",
	Short: "Orderline CLI",
	Long: `Orderline turns title orders into task lists in your project hub.
Core concepts:
- Workspace: the .orderline directory holding the local database; orderline.yml next to it holds hub credentials and project locators.
- Order: one client engagement, identified by an order number and date.
- Report: a deliverable on an order (runsheet or base/supplemental/DOL abstract) covering a date range.
- Lease: a federal or state lease a report references; the same lease may appear on several reports.
- Product: an (agency, report kind) combination bound to a hub project; runsheets generate one flat list per order, abstracts one sectioned list per report.
- Connection: your personal hub credential (ol connect); workflow runs create lists as you.
- Event log: diary of changes and runs, view with 'ol log tail'.`,
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
	viper.SetEnvPrefix("ORDERLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("order", "", "order id or number (overrides single-order default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("order", rootCmd.PersistentFlags().Lookup("order"))
}

func registerCommands() {
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(leaseCmd())
	rootCmd.AddCommand(connectCmd())
	rootCmd.AddCommand(disconnectCmd())
	rootCmd.AddCommand(productsCmd())
	rootCmd.AddCommand(workflowCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func orderCmd() *cobra.Command {
	order := &cobra.Command{Use: "order", Short: "Manage orders"}
	order.AddCommand(orderCreateCmd())
	order.AddCommand(orderListCmd())
	order.AddCommand(orderShowCmd())
	order.AddCommand(orderDeleteCmd())
	return order
}

func orderCreateCmd() *cobra.Command {
	var number, date, deliveryLink string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if number == "" {
				return fmt.Errorf("--number required")
			}
			if _, err := time.Parse("2006-01-02", date); err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				o := domain.Order{
					ID:           uuid.NewString(),
					OrderNumber:  number,
					OrderDate:    date,
					DeliveryLink: deliveryLink,
					CreatedAt:    time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertOrder(ctx, o); err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&number, "number", "", "order number")
	cmd.Flags().StringVar(&date, "date", "", "order date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&deliveryLink, "delivery-link", "", "delivery folder link")
	_ = cmd.MarkFlagRequired("number")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func orderListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListOrders(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Number", "Date", "Created"})
				for _, o := range items {
					t.AppendRow(table.Row{o.ID, o.OrderNumber, o.OrderDate, o.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	return cmd
}

func orderShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an order with its reports and leases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				o, err := app.ResolveOrder(ctx, viper.GetString("order"), r)
				if err != nil {
					return err
				}
				g, err := r.LoadOrderGraph(ctx, o.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(g)
				}
				fmt.Printf("Order %s (%s) dated %s\n", g.Order.OrderNumber, g.Order.ID, g.Order.OrderDate)
				for _, rep := range g.Reports {
					fmt.Printf("  Report %d [%s]: %s\n", rep.ID, rep.Kind, workflow.Describe(rep))
					for _, l := range rep.Leases {
						marker := ""
						if l.PriorReportFound {
							marker = " (prior report)"
						}
						fmt.Printf("    Lease %s [%s]%s\n", l.LeaseNumber, l.Agency, marker)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func orderDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				o, err := app.ResolveOrder(ctx, viper.GetString("order"), r)
				if err != nil {
					return err
				}
				return r.DeleteOrder(ctx, o.ID)
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	report := &cobra.Command{
		Use:   "report",
		Short: "Manage reports",
		Long:  "Reports are the deliverables on an order. Each has a kind (runsheet, base_abstract, supplemental_abstract, dol_abstract), a legal description, and an optional covered date range.",
	}
	report.AddCommand(reportAddCmd())
	return report
}

func reportAddCmd() *cobra.Command {
	var kind, legal, start, end string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a report to an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := domain.ReportKind(kind)
			if !domain.ValidReportKind(k) {
				return fmt.Errorf("invalid --kind %q; one of %v", kind, domain.ReportKinds)
			}
			for _, d := range []string{start, end} {
				if d == "" {
					continue
				}
				if _, err := time.Parse("2006-01-02", d); err != nil {
					return fmt.Errorf("dates must be YYYY-MM-DD")
				}
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				o, err := app.ResolveOrder(ctx, viper.GetString("order"), r)
				if err != nil {
					return err
				}
				rep, err := r.InsertReport(ctx, domain.Report{
					OrderID:          o.ID,
					Kind:             k,
					LegalDescription: legal,
					StartDate:        optionalString(start),
					EndDate:          optionalString(end),
					CreatedAt:        time.Now().UTC().Format(time.RFC3339),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "report kind")
	cmd.Flags().StringVar(&legal, "legal", "", "legal description")
	cmd.Flags().StringVar(&start, "start", "", "covered period start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "covered period end (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("legal")
	return cmd
}

func leaseCmd() *cobra.Command {
	lease := &cobra.Command{
		Use:   "lease",
		Short: "Manage leases",
		Long:  "Leases are the federal or state leases a report references. 'lease add' creates a lease and attaches it in one step; 'lease attach' links an existing lease to another report.",
	}
	lease.AddCommand(leaseAddCmd())
	lease.AddCommand(leaseAttachCmd())
	return lease
}

func leaseAddCmd() *cobra.Command {
	var reportID int64
	var number, agency, archiveLink string
	var prior bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a lease and attach it to a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := domain.Agency(agency)
			if a != domain.AgencyFederal && a != domain.AgencyState {
				return fmt.Errorf("--agency must be federal or state")
			}
			if number == "" {
				return fmt.Errorf("--number required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetReport(ctx, reportID); err != nil {
					return fmt.Errorf("report %d: %w", reportID, err)
				}
				l, err := r.InsertLease(ctx, domain.Lease{
					LeaseNumber:      number,
					Agency:           a,
					PriorReportFound: prior,
					ArchiveLink:      archiveLink,
					CreatedAt:        time.Now().UTC().Format(time.RFC3339),
				})
				if err != nil {
					return err
				}
				if err := r.AttachLease(ctx, reportID, l.ID); err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().Int64Var(&reportID, "report", 0, "report id")
	cmd.Flags().StringVar(&number, "number", "", "lease number")
	cmd.Flags().StringVar(&agency, "agency", "", "agency (federal or state)")
	cmd.Flags().BoolVar(&prior, "prior-report", false, "a prior report exists for this lease")
	cmd.Flags().StringVar(&archiveLink, "archive-link", "", "lease archive link")
	_ = cmd.MarkFlagRequired("report")
	_ = cmd.MarkFlagRequired("number")
	_ = cmd.MarkFlagRequired("agency")
	return cmd
}

func leaseAttachCmd() *cobra.Command {
	var reportID, leaseID int64
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach an existing lease to a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetReport(ctx, reportID); err != nil {
					return fmt.Errorf("report %d: %w", reportID, err)
				}
				return r.AttachLease(ctx, reportID, leaseID)
			})
		},
	}
	cmd.Flags().Int64Var(&reportID, "report", 0, "report id")
	cmd.Flags().Int64Var(&leaseID, "lease", 0, "lease id")
	_ = cmd.MarkFlagRequired("report")
	_ = cmd.MarkFlagRequired("lease")
	return cmd
}

func connectCmd() *cobra.Command {
	var accessToken, refreshToken string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Store your task-hub credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			if accessToken == "" {
				return fmt.Errorf("--access-token required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				actorID := viper.GetString("actor-id")
				err := r.UpsertConnection(ctx, domain.Connection{
					ActorID:      actorID,
					AccessToken:  accessToken,
					RefreshToken: refreshToken,
					UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
				})
				if err != nil {
					return err
				}
				fmt.Printf("Connected %s to the task hub\n", actorID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&accessToken, "access-token", "", "hub access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "hub refresh token")
	_ = cmd.MarkFlagRequired("access-token")
	return cmd
}

func disconnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Remove your task-hub credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteConnection(ctx, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func productsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List products and their hub project locators",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defs := workflow.Products()
			if viper.GetBool("json") {
				out := make([]map[string]any, 0, len(defs))
				for _, d := range defs {
					out = append(out, map[string]any{
						"name":        d.Name,
						"project_key": d.ProjectKey,
						"agency":      string(d.Agency),
						"strategy":    string(d.Strategy),
						"project_id":  cfg.ProjectLocator(d.ProjectKey),
					})
				}
				return printJSON(out)
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Product", "Key", "Agency", "Strategy", "Hub Project"})
			for _, d := range defs {
				id := cfg.ProjectLocator(d.ProjectKey)
				if id == "" {
					id = "(unset: " + config.ProjectEnvVar(d.ProjectKey) + ")"
				}
				t.AppendRow(table.Row{d.Name, d.ProjectKey, d.Agency, d.Strategy, id})
			}
			t.Render()
			return nil
		},
	}
	return cmd
}

func workflowCmd() *cobra.Command {
	wf := &cobra.Command{Use: "workflow", Short: "Generate hub task lists"}
	wf.AddCommand(workflowRunCmd())
	return wf
}

func workflowRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run workflow generation for an order",
		Long:  "Creates task lists in the hub for every product matching the order's reports. Products fail independently; rerunning creates duplicates in the hub.",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				o, err := app.ResolveOrder(ctx, viper.GetString("order"), r)
				if err != nil {
					return err
				}
				x := workflow.New(r, taskhub.Connector{Repo: r, Config: cfg}, cfg, log.Default())
				out, err := x.Execute(ctx, o.ID, viper.GetString("actor-id"))
				var nce *workflow.NotConnectedError
				if errors.As(err, &nce) {
					return fmt.Errorf("%w; run ol connect first", err)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				if out.NothingToDo {
					fmt.Println("No products apply to this order; nothing created.")
					return nil
				}
				for _, name := range out.Succeeded {
					fmt.Printf("created %s\n", name)
				}
				for _, name := range out.Failed {
					fmt.Printf("FAILED %s: %s\n", name, out.Errors[name])
				}
				fmt.Printf("%d lists, %d tasks\n", out.Lists, out.Tasks)
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				orderID := ""
				if viper.GetString("order") != "" {
					o, err := app.ResolveOrder(ctx, viper.GetString("order"), r)
					if err != nil {
						return err
					}
					orderID = o.ID
				}
				events, err := r.LatestEvents(ctx, n, orderID, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyRevokeCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "olk_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// The secret is only printed here; the DB stores its hash.
				fmt.Printf("id: %s\nkey: %s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, id)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "key id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter orderline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("ORDERLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("ORDERLINE_JWT_SECRET is required for bearer auth")
			}
			logger := log.Default()
			if v, err := migrate.Version(conn); err == nil {
				logger.Info("workspace ready", "path", db.Path(workspace), "schema_version", v)
			}
			x := workflow.New(r, taskhub.Connector{Repo: r, Config: cfg}, cfg, logger)
			handler, err := server.New(server.Config{
				Repo:     r,
				App:      cfg,
				Runner:   x,
				BasePath: basePath,
				Auth:     authCfg,
				Logger:   logger,
			})
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
			fmt.Printf("Serving Orderline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
