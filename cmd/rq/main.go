// Command rq manages a reqline broker: capability map, tenant roster,
// request and result lifecycles, the HTTP server and the tenant worker loop.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reqline/internal/db"
	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/migrate"
	"reqline/internal/registry"
	"reqline/internal/repo"
	"reqline/internal/server"
	"reqline/internal/worker"
)

var (
	flagDir  string
	flagJSON bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rq",
		Short:         "reqline data generation broker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			viper.SetEnvPrefix("REQLINE")
			viper.AutomaticEnv()
			return viper.BindPFlag("dir", cmd.Root().PersistentFlags().Lookup("dir"))
		},
	}
	root.PersistentFlags().StringVar(&flagDir, "dir", ".", "workspace directory")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newInitCmd(),
		newServeCmd(),
		newTokenCmd(),
		newCapabilityCmd(),
		newTenantCmd(),
		newLimitationsCmd(),
		newRequestCmd(),
		newResultCmd(),
		newAPIKeyCmd(),
		newWorkerCmd(),
	)
	return root
}

// withEngine opens the workspace database, migrates it and hands the engine
// and registry to fn.
func withEngine(fn func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error) error {
	ctx := context.Background()
	dir := viper.GetString("dir")
	if dir == "" {
		dir = flagDir
	}
	if err := db.EnsureWorkspace(dir); err != nil {
		return err
	}
	conn, err := db.Open(db.Path(dir))
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn), registry.New(conn))
}

func readJSONFile(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				fmt.Println("workspace initialized")
				return nil
			})
		},
	}
}

func newServeCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt_secret")
			if secret == "" {
				return errors.New("REQLINE_JWT_SECRET must be set")
			}
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				logger := log.New(os.Stderr, "reqline ", log.LstdFlags)
				handler := server.NewHandler(eng, reg, server.Config{
					Addr:      addr,
					BasePath:  basePath,
					JWTSecret: secret,
					Logger:    logger,
				})
				srv := &http.Server{Addr: addr, Handler: handler}

				errCh := make(chan error, 1)
				go func() {
					logger.Printf("listening on %s%s", addr, basePath)
					errCh <- srv.ListenAndServe()
				}()

				stop := make(chan os.Signal, 1)
				signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
				select {
				case err := <-errCh:
					return err
				case <-stop:
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":13371", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api/v1", "API base path")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var tenantUUID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt_secret")
			if secret == "" {
				return errors.New("REQLINE_JWT_SECRET must be set")
			}
			token, err := server.MintToken(secret, tenantUUID, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantUUID, "tenant", "", "tenant uuid")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

func newCapabilityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "capability", Short: "Manage the capability map"}

	var addFile string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a capability from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var spec struct {
				Quantity       string         `json:"quantity"`
				Method         string         `json:"method"`
				Specifications map[string]any `json:"specifications"`
				ResultOutput   map[string]any `json:"result_output"`
				IsActive       *bool          `json:"is_active"`
			}
			if err := readJSONFile(addFile, &spec); err != nil {
				return err
			}
			active := true
			if spec.IsActive != nil {
				active = *spec.IsActive
			}
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				c, err := reg.AddCapability(ctx, registry.CapabilitySpec{
					Quantity:       spec.Quantity,
					Method:         spec.Method,
					Specifications: spec.Specifications,
					ResultOutput:   spec.ResultOutput,
					IsActive:       active,
				})
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	add.Flags().StringVar(&addFile, "file", "", "capability JSON file")
	add.MarkFlagRequired("file")

	var quantity, method string
	var available bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List active capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				caps, err := reg.GetCapabilities(ctx, quantity, method, available)
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(caps)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"UUID", "QUANTITY", "METHOD", "ACTIVE", "CREATED"})
				for _, c := range caps {
					t.AppendRow(table.Row{c.UUID, c.Quantity, c.Method, c.IsActive, c.CreatedAt.Format(time.RFC3339)})
				}
				t.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&quantity, "quantity", "", "filter by quantity")
	list.Flags().StringVar(&method, "method", "", "filter by method")
	list.Flags().BoolVar(&available, "available", false, "only capabilities covered by active tenants")

	var yes bool
	deactivate := &cobra.Command{
		Use:   "deactivate <method>",
		Short: "Deactivate the active capability for a method",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("deactivation is permanent for this capability version, pass --yes to confirm")
			}
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				if err := reg.DeactivateCapability(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("method %q has been deactivated\n", args[0])
				return nil
			})
		},
	}
	deactivate.Flags().BoolVar(&yes, "yes", false, "confirm deactivation")

	var tplQuantity, tplMethod string
	var tplAvailable bool
	tpl := &cobra.Command{
		Use:   "template",
		Short: "Render parameter templates for capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				templates, err := reg.SchemaTemplates(ctx, tplQuantity, tplMethod, tplAvailable)
				if err != nil {
					return err
				}
				return printJSON(templates)
			})
		},
	}
	tpl.Flags().StringVar(&tplQuantity, "quantity", "", "filter by quantity")
	tpl.Flags().StringVar(&tplMethod, "method", "", "filter by method")
	tpl.Flags().BoolVar(&tplAvailable, "available", false, "only capabilities covered by active tenants")

	cmd.AddCommand(add, list, deactivate, tpl)
	return cmd
}

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tenant", Short: "Manage the tenant roster"}

	var addFile string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a tenant from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var spec struct {
				Name          string              `json:"name"`
				ContactPerson string              `json:"contact_person"`
				Limitations   []domain.Limitation `json:"limitations"`
			}
			if err := readJSONFile(addFile, &spec); err != nil {
				return err
			}
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				t, err := reg.AddTenant(ctx, registry.TenantSpec{
					Name:          spec.Name,
					ContactPerson: spec.ContactPerson,
					Limitations:   spec.Limitations,
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	add.Flags().StringVar(&addFile, "file", "", "tenant JSON file")
	add.MarkFlagRequired("file")

	var name string
	list := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				tenants, err := reg.TenantsByName(ctx, name)
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(tenants)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"UUID", "NAME", "ACTIVE", "LIMITATIONS", "CREATED"})
				for _, tenant := range tenants {
					t.AppendRow(table.Row{tenant.UUID, tenant.Name, tenant.IsActive,
						len(tenant.Limitations), tenant.CreatedAt.Format(time.RFC3339)})
				}
				t.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&name, "name", "", "filter by name")

	var active bool
	setState := &cobra.Command{
		Use:   "set-state <uuid>",
		Short: "Activate or deactivate a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				t, err := reg.AlterTenantState(ctx, args[0], active)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	setState.Flags().BoolVar(&active, "active", true, "desired is_active state")

	cmd.AddCommand(add, list, setState)
	return cmd
}

func newLimitationsCmd() *cobra.Command {
	var available bool
	cmd := &cobra.Command{
		Use:   "limitations",
		Short: "Aggregate tenant limitations per quantity and method",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				limitations, err := reg.GetLimitations(ctx, available)
				if err != nil {
					return err
				}
				return printJSON(limitations)
			})
		},
	}
	cmd.Flags().BoolVar(&available, "available", true, "only limitations of active tenants")
	return cmd
}

func newRequestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "request", Short: "Manage requests"}

	var createFile, tenantUUID string
	create := &cobra.Command{
		Use:   "create",
		Short: "Submit a request from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sub struct {
				Quantity   string                    `json:"quantity"`
				Methods    []string                  `json:"methods"`
				Parameters map[string]map[string]any `json:"parameters"`
			}
			if err := readJSONFile(createFile, &sub); err != nil {
				return err
			}
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				req, err := eng.CreateRequest(ctx, engine.RequestSubmission{
					Quantity:   sub.Quantity,
					Methods:    sub.Methods,
					Parameters: sub.Parameters,
					TenantUUID: tenantUUID,
				})
				if err != nil {
					return err
				}
				return printJSON(req)
			})
		},
	}
	create.Flags().StringVar(&createFile, "file", "", "request JSON file")
	create.Flags().StringVar(&tenantUUID, "tenant", "", "submitting tenant uuid")
	create.MarkFlagRequired("file")
	create.MarkFlagRequired("tenant")

	show := &cobra.Command{
		Use:   "show <uuid>",
		Short: "Show one request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				req, err := eng.GetRequest(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(req)
			})
		},
	}

	var quantity, method string
	var pendingOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				var reqs []domain.Request
				var err error
				if pendingOnly {
					reqs, err = eng.GetPendingRequests(ctx, quantity, method)
				} else {
					reqs, err = eng.GetAllRequests(ctx, quantity, method)
				}
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(reqs)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"UUID", "QUANTITY", "METHODS", "STATUS", "UPDATED"})
				for _, req := range reqs {
					t.AppendRow(table.Row{req.UUID, req.Quantity, fmt.Sprint(req.Methods),
						req.Status, req.UpdatedAt.Format(time.RFC3339)})
				}
				t.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&quantity, "quantity", "", "filter by quantity")
	list.Flags().StringVar(&method, "method", "", "filter by method")
	list.Flags().BoolVar(&pendingOnly, "pending", false, "only pending requests")

	var message string
	setStatus := &cobra.Command{
		Use:   "set-status <uuid> <status>",
		Short: "Change a request's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				req, err := eng.ChangeStatusRequest(ctx, args[0], args[1], message)
				if err != nil {
					return err
				}
				return printJSON(req)
			})
		},
	}
	setStatus.Flags().StringVar(&message, "message", "", "annotation for the status log")

	history := &cobra.Command{
		Use:   "history <uuid>",
		Short: "Show a request's status log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				entries, err := eng.RequestHistory(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(entries)
			})
		},
	}

	cmd.AddCommand(create, show, list, setStatus, history)
	return cmd
}

func newResultCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "result", Short: "Manage results"}

	type resultFile struct {
		RequestUUID string                    `json:"request_uuid"`
		Quantity    string                    `json:"quantity"`
		Methods     []string                  `json:"methods"`
		Parameters  map[string]map[string]any `json:"parameters"`
		Data        map[string]any            `json:"data"`
	}

	var postFile, tenantUUID string
	var unsolicited bool
	post := &cobra.Command{
		Use:   "post",
		Short: "Post a result from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sub resultFile
			if err := readJSONFile(postFile, &sub); err != nil {
				return err
			}
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				submission := engine.ResultSubmission{
					RequestUUID: sub.RequestUUID,
					Quantity:    sub.Quantity,
					Methods:     sub.Methods,
					Parameters:  sub.Parameters,
					Data:        sub.Data,
					TenantUUID:  tenantUUID,
				}
				var (
					res domain.Result
					err error
				)
				if unsolicited {
					res, err = eng.CreateUnsolicitedResult(ctx, submission)
				} else {
					res, err = eng.CreateResult(ctx, submission)
				}
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	post.Flags().StringVar(&postFile, "file", "", "result JSON file")
	post.Flags().StringVar(&tenantUUID, "tenant", "", "posting tenant uuid")
	post.Flags().BoolVar(&unsolicited, "unsolicited", false, "post without a prior request")
	post.MarkFlagRequired("file")
	post.MarkFlagRequired("tenant")

	show := &cobra.Command{
		Use:   "show <uuid>",
		Short: "Show one result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				res, err := eng.GetResult(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}

	forRequest := &cobra.Command{
		Use:   "for-request <request-uuid>",
		Short: "Show the result posted for a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				res, err := eng.GetResultByRequest(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}

	var quantity, method string
	list := &cobra.Command{
		Use:   "list",
		Short: "List results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				results, err := eng.GetAllResults(ctx, quantity, method)
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(results)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"UUID", "REQUEST", "QUANTITY", "METHOD", "STATUS", "CREATED"})
				for _, res := range results {
					t.AppendRow(table.Row{res.UUID, res.RequestUUID, res.Quantity, res.Method,
						res.Status, res.CreatedAt.Format(time.RFC3339)})
				}
				t.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&quantity, "quantity", "", "filter by quantity")
	list.Flags().StringVar(&method, "method", "", "filter by method")

	var message string
	setStatus := &cobra.Command{
		Use:   "set-status <uuid> <status>",
		Short: "Change a result's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				res, err := eng.ChangeStatusResult(ctx, args[0], args[1], message)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	setStatus.Flags().StringVar(&message, "message", "", "annotation for the status log")

	history := &cobra.Command{
		Use:   "history <uuid>",
		Short: "Show a result's status log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				entries, err := eng.ResultHistory(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(entries)
			})
		},
	}

	cmd.AddCommand(post, show, forRequest, list, setStatus, history)
	return cmd
}

func newAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage tenant API keys"}

	var tenantUUID, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				r := repo.Repo{DB: eng.DB}
				key, secret, err := r.CreateAPIKey(ctx, tenantUUID, name, time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("api key %d created for tenant %s\n", key.ID, key.TenantUUID)
				fmt.Println("secret (shown once):", secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&tenantUUID, "tenant", "", "tenant uuid")
	create.Flags().StringVar(&name, "name", "", "key name")
	create.MarkFlagRequired("tenant")
	create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				keys, err := eng.Repo.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(keys)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "TENANT", "NAME", "CREATED"})
				for _, key := range keys {
					t.AppendRow(table.Row{key.ID, key.TenantUUID, key.Name, key.CreatedAt.Format(time.RFC3339)})
				}
				t.Render()
				return nil
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("bad key id %q", args[0])
			}
			return withEngine(func(ctx context.Context, eng *engine.Engine, reg *registry.Registry) error {
				if err := eng.Repo.RevokeAPIKey(ctx, id); err != nil {
					return err
				}
				fmt.Printf("api key %d revoked\n", id)
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "worker", Short: "Run a tenant worker"}

	var configFile string
	run := &cobra.Command{
		Use:   "run",
		Short: "Poll for pending requests and echo parameters back as results",
		Long: "Runs the polling loop with the built-in echo method, which answers " +
			"every reserved request with its own parameters. Real tenants embed the " +
			"worker package and supply their own method implementations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := worker.LoadConfig(configFile)
			if err != nil {
				return err
			}
			methods := map[string]worker.MethodFunc{}
			for _, offer := range cfg.Offers {
				methods[offer.Method] = echoMethod
			}
			w := worker.FromConfig(cfg, methods)
			w.Logger = log.New(os.Stderr, "worker ", log.LstdFlags)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err = w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	run.Flags().StringVar(&configFile, "config", "worker.yaml", "worker configuration file")

	cmd.AddCommand(run)
	return cmd
}

func echoMethod(ctx context.Context, method string, parameters map[string]any) (map[string]any, error) {
	return map[string]any{"method": method, "parameters": parameters}, nil
}
