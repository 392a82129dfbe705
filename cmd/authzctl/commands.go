package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/upb/workspace-authz/internal/auth"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/services"
	"github.com/upb/workspace-authz/services/assignment"
	"github.com/upb/workspace-authz/services/audit"
)

const defaultActor = "authzctl"

type catalogEntry struct {
	Role        models.Role         `json:"role"`
	Priority    int                 `json:"priority"`
	Permissions []models.Permission `json:"permissions"`
}

func (c *cli) catalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [role]",
		Short: "Print the permissions granted by each role",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := auth.DefaultCatalog()

			roles := catalog.Roles()
			if len(args) == 1 {
				role, err := models.ParseRole(args[0])
				if err != nil {
					return err
				}
				roles = []models.Role{role}
			}

			entries := make([]catalogEntry, 0, len(roles))
			for _, role := range roles {
				entries = append(entries, catalogEntry{
					Role:        role,
					Priority:    role.Priority(),
					Permissions: catalog.PermissionsOf(role).Sorted(),
				})
			}

			return c.render(entries, func(w io.Writer) {
				fmt.Fprintln(w, "ROLE\tPRIORITY\tPERMISSIONS")
				for _, e := range entries {
					perms := make([]string, len(e.Permissions))
					for i, p := range e.Permissions {
						perms[i] = p.String()
					}
					fmt.Fprintf(w, "%s\t%d\t%s\n", e.Role, e.Priority, strings.Join(perms, ","))
				}
			})
		},
	}
}

type checkResult struct {
	UserID         string            `json:"user_id"`
	Permission     models.Permission `json:"permission"`
	OrganizationID string            `json:"organization_id,omitempty"`
	Allowed        bool              `json:"allowed"`
}

func (c *cli) checkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <user-id> <permission>",
		Short: "Report whether a user holds a permission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			permission, err := models.ParsePermission(args[1])
			if err != nil {
				return err
			}
			orgID, _ := cmd.Flags().GetString("org")

			return c.withStore(cmd, func(ctx context.Context, s *store) error {
				res := checkResult{
					UserID:         args[0],
					Permission:     permission,
					OrganizationID: orgID,
					Allowed:        s.resolver.HasPermission(ctx, args[0], permission, orgID),
				}
				return c.render(res, func(w io.Writer) {
					fmt.Fprintln(w, "USER\tPERMISSION\tORGANIZATION\tALLOWED")
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", res.UserID, res.Permission, orDash(res.OrganizationID), res.Allowed)
				})
			})
		},
	}
	cmd.Flags().String("org", "", "Organization ID (global grants only when empty)")
	return cmd
}

type roleResult struct {
	UserID         string      `json:"user_id"`
	OrganizationID string      `json:"organization_id"`
	Role           models.Role `json:"role,omitempty"`
	Found          bool        `json:"found"`
}

func (c *cli) roleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role <user-id>",
		Short: "Print a user's effective role in an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, _ := cmd.Flags().GetString("org")
			if orgID == "" {
				return fmt.Errorf("--org is required")
			}

			return c.withStore(cmd, func(ctx context.Context, s *store) error {
				role, found := s.resolver.EffectiveRole(ctx, args[0], orgID)
				res := roleResult{UserID: args[0], OrganizationID: orgID, Role: role, Found: found}
				return c.render(res, func(w io.Writer) {
					fmt.Fprintln(w, "USER\tORGANIZATION\tROLE")
					fmt.Fprintf(w, "%s\t%s\t%s\n", res.UserID, res.OrganizationID, orDash(res.Role.String()))
				})
			})
		},
	}
	cmd.Flags().String("org", "", "Organization ID")
	return cmd
}

func (c *cli) listCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <user-id>",
		Short: "List a user's role assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, _ := cmd.Flags().GetString("org")
			filter := models.AnyOrganization()
			if orgID != "" {
				filter = models.InOrganizationOrGlobal(orgID)
			}

			return c.withStore(cmd, func(ctx context.Context, s *store) error {
				// The repository is queried directly so storage errors surface
				// instead of being read as "no assignments".
				assignments, err := s.assignments.QueryAssignments(ctx, args[0], filter)
				if err != nil {
					return err
				}
				return c.renderAssignments(assignments)
			})
		},
	}
	cmd.Flags().String("org", "", "Only show assignments for this organization plus global ones")
	return cmd
}

func (c *cli) assignCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <user-id> <role>",
		Short: "Grant a role to a user, globally or in one organization",
		Long: "Grant a role to a user. The change is written directly to the database\n" +
			"together with its audit record, without any caller permission check.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := models.ParseRole(args[1])
			if err != nil {
				return err
			}
			orgID, _ := cmd.Flags().GetString("org")
			actor, _ := cmd.Flags().GetString("actor")

			return c.withStore(cmd, func(ctx context.Context, s *store) error {
				a := models.NewRoleAssignment(args[0], role, orgID, actor)
				err := services.WithTransaction(ctx, s.txMgr, func(ctx context.Context) error {
					if err := s.assignments.Create(ctx, a); err != nil {
						return err
					}
					return s.auditLogs.Insert(ctx, audit.RoleAssigned(actor, a, audit.RequestInfo{}))
				})
				if err != nil {
					return err
				}
				return c.renderAssignments([]*models.RoleAssignment{a})
			})
		},
	}
	cmd.Flags().String("org", "", "Organization ID (global assignment when empty)")
	cmd.Flags().String("actor", defaultActor, "Actor recorded in the audit log")
	return cmd
}

func (c *cli) revokeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <assignment-id>",
		Short: "Remove a role assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid assignment ID %q: %w", args[0], err)
			}
			actor, _ := cmd.Flags().GetString("actor")

			return c.withStore(cmd, func(ctx context.Context, s *store) error {
				a, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context) (*models.RoleAssignment, error) {
					a, err := s.assignments.GetByID(ctx, id)
					if err != nil {
						return nil, err
					}
					if err := s.assignments.Delete(ctx, id); err != nil {
						return nil, err
					}
					return a, s.auditLogs.Insert(ctx, audit.RoleRevoked(actor, a, audit.RequestInfo{}))
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "revoked %s (%s for %s)\n", a.ID, a.Role, a.UserID)
				return nil
			})
		},
	}
	cmd.Flags().String("actor", defaultActor, "Actor recorded in the audit log")
	return cmd
}

func (c *cli) auditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [log-id]",
		Short: "Show audit log entries for an organization or an actor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, _ := cmd.Flags().GetString("org")
			actor, _ := cmd.Flags().GetString("actor")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			limit, offset = assignment.NormalizePage(limit, offset)

			var id uuid.UUID
			switch {
			case len(args) == 1:
				parsed, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid audit log ID %q: %w", args[0], err)
				}
				id = parsed
			case orgID != "" && actor != "":
				return fmt.Errorf("--org and --actor are mutually exclusive")
			case orgID == "" && actor == "":
				return fmt.Errorf("one of --org or --actor is required")
			}

			return c.withStore(cmd, func(ctx context.Context, s *store) error {
				reader := audit.NewReader(s.auditLogs, s.logger)

				var (
					logs []*models.AuditLog
					err  error
				)
				switch {
				case id != uuid.Nil:
					var entry *models.AuditLog
					entry, err = reader.Get(ctx, id, orgID)
					if entry != nil {
						logs = []*models.AuditLog{entry}
					}
				case orgID != "":
					logs, err = reader.ListForOrganization(ctx, orgID, limit, offset)
				default:
					logs, err = reader.ListForActor(ctx, actor, limit, offset)
				}
				if err != nil {
					return err
				}
				return c.renderAuditLogs(logs)
			})
		},
	}
	cmd.Flags().String("org", "", "Organization ID")
	cmd.Flags().String("actor", "", "Actor ID")
	cmd.Flags().Int("limit", assignment.DefaultPageSize, "Maximum number of entries")
	cmd.Flags().Int("offset", 0, "Number of entries to skip")
	return cmd
}

func (c *cli) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the role assignment and audit tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(ctx context.Context, s *store) error {
				if err := s.db.InitSchema(ctx); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "schema up to date")
				return nil
			})
		},
	}
}

type tokenResult struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *cli) tokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token for a user (development and testing)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := c.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			tokens, err := auth.NewTokenService(auth.TokenConfig{
				Secret:   cfg.Auth.JWTSecret,
				Issuer:   cfg.Auth.Issuer,
				Audience: cfg.Auth.Audience,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, err := tokens.Issue(args[0], email)
			if err != nil {
				return err
			}
			principal, err := tokens.ValidateToken(cmd.Context(), token)
			if err != nil {
				return err
			}

			res := tokenResult{Token: token, Subject: principal.Subject, ExpiresAt: principal.ExpiresAt}
			if c.output == outputJSON {
				return c.render(res, nil)
			}
			fmt.Fprintln(c.out, token)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Email claim")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to JWT_TTL)")
	return cmd
}

func (c *cli) renderAssignments(assignments []*models.RoleAssignment) error {
	return c.render(assignments, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tUSER\tROLE\tORGANIZATION\tASSIGNED BY\tCREATED")
		for _, a := range assignments {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				a.ID, a.UserID, a.Role, orDash(a.Scope()), orDash(a.AssignedBy), a.CreatedAt.Format(time.RFC3339))
		}
	})
}

func (c *cli) renderAuditLogs(logs []*models.AuditLog) error {
	return c.render(logs, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tTIME\tACTOR\tACTION\tORGANIZATION\tRESOURCE")
		for _, l := range logs {
			org, resource := "", ""
			if l.OrganizationID != nil {
				org = *l.OrganizationID
			}
			if l.ResourceID != nil {
				resource = *l.ResourceID
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				l.ID, l.Timestamp.UTC().Format(time.RFC3339), l.ActorID, l.Action, orDash(org), orDash(resource))
		}
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
