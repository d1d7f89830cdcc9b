package user

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stokaro/userbase/cmd/internal/app"
	"github.com/stokaro/userbase/users"
)

const (
	emailFlag      = "email"
	passwordFlag   = "password"
	roleFlag       = "role"
	firstNameFlag  = "first-name"
	middleNameFlag = "middle-name"
	lastNameFlag   = "last-name"
	usernameFlag   = "username"
	avatarURLFlag  = "avatar-url"
	bioFlag        = "bio"

	pageFlag    = "page"
	perPageFlag = "per-page"
)

func createFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		emailFlag: &cobraflags.StringFlag{
			Name:  emailFlag,
			Value: "",
			Usage: "Email address (required)",
		},
		passwordFlag: &cobraflags.StringFlag{
			Name:  passwordFlag,
			Value: "",
			Usage: "Plain-text password, hashed before it is stored (required)",
		},
		roleFlag: &cobraflags.StringFlag{
			Name:  roleFlag,
			Value: users.RoleGuest.String(),
			Usage: "Role: Owner, Admin, Employee or Guest",
		},
		firstNameFlag: &cobraflags.StringFlag{
			Name:  firstNameFlag,
			Value: "",
			Usage: "First name",
		},
		middleNameFlag: &cobraflags.StringFlag{
			Name:  middleNameFlag,
			Value: "",
			Usage: "Middle name",
		},
		lastNameFlag: &cobraflags.StringFlag{
			Name:  lastNameFlag,
			Value: "",
			Usage: "Last name",
		},
		usernameFlag: &cobraflags.StringFlag{
			Name:  usernameFlag,
			Value: "",
			Usage: "Public username, unique when set",
		},
		avatarURLFlag: &cobraflags.StringFlag{
			Name:  avatarURLFlag,
			Value: "",
			Usage: "Avatar URL (http or https)",
		},
		bioFlag: &cobraflags.StringFlag{
			Name:  bioFlag,
			Value: "",
			Usage: "Short biography",
		},
	}
}

func listFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		pageFlag: &cobraflags.StringFlag{
			Name:  pageFlag,
			Value: "1",
			Usage: "Page number, starting at 1",
		},
		perPageFlag: &cobraflags.StringFlag{
			Name:  perPageFlag,
			Value: strconv.Itoa(users.DefaultPerPage),
			Usage: fmt.Sprintf("Users per page (max %d)", users.MaxPerPage),
		},
	}
}

func NewUserCommand(opts *app.Options) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts and profiles",
		Long: `Manage user accounts and profiles.

Examples:
  userbase user create --email a@x.com --password 'S3cret!pass' --role Guest
  userbase user get a@x.com
  userbase user update-info 6f1c... first_name=Ann bio=
  userbase user set-role 6f1c... Admin
  userbase user delete 6f1c...
  userbase user list --page 2`,
	}

	userCmd.AddCommand(newCreateCommand(opts))
	userCmd.AddCommand(newGetCommand(opts))
	userCmd.AddCommand(newUpdateInfoCommand(opts))
	userCmd.AddCommand(newSetRoleCommand(opts))
	userCmd.AddCommand(newDeleteCommand(opts))
	userCmd.AddCommand(newListCommand(opts))
	return userCmd
}

func newCreateCommand(opts *app.Options) *cobra.Command {
	flags := createFlags()
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user together with its profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := flags[passwordFlag].GetString()
			if err := users.ValidatePassword(password); err != nil {
				return err
			}
			role, err := users.ParseRole(flags[roleFlag].GetString())
			if err != nil {
				return err
			}
			hash, err := users.HashPassword(password)
			if err != nil {
				return err
			}

			in := users.NewUser{
				Email:        flags[emailFlag].GetString(),
				PasswordHash: hash,
				Role:         role,
				Info: users.UserInfo{
					FirstName:  optional(flags[firstNameFlag].GetString()),
					MiddleName: optional(flags[middleNameFlag].GetString()),
					LastName:   optional(flags[lastNameFlag].GetString()),
					Username:   optional(flags[usernameFlag].GetString()),
					AvatarURL:  optional(flags[avatarURLFlag].GetString()),
					Bio:        optional(flags[bioFlag].GetString()),
				},
			}

			return withRepository(cmd, opts, func(ctx runContext) error {
				user, err := ctx.repo.CreateUser(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}

	cobraflags.RegisterMap(createCmd, flags)
	return createCmd
}

func newGetCommand(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "get EMAIL|USER_ID",
		Short: "Show a user by email or id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, opts, func(ctx runContext) error {
				var (
					user *users.User
					err  error
				)
				if id, parseErr := uuid.Parse(args[0]); parseErr == nil {
					user, err = ctx.repo.GetUser(ctx, id)
				} else {
					user, err = ctx.repo.GetUserByEmail(ctx, args[0])
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}
}

func newUpdateInfoCommand(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "update-info USER_ID FIELD=VALUE...",
		Short: "Change profile fields; an empty value clears the field",
		Long: `Change profile fields of a user. Fields that are not named keep their value
and an empty value clears the field.

Fields: first_name, middle_name, last_name, username, avatar_url, bio`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			patch, err := parsePatch(args[1:])
			if err != nil {
				return err
			}
			return withRepository(cmd, opts, func(ctx runContext) error {
				info, err := ctx.repo.UpdateUserInfo(ctx, id, patch)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	}
}

func newSetRoleCommand(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role USER_ID ROLE",
		Short: "Change the role of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			role, err := users.ParseRole(args[1])
			if err != nil {
				return err
			}
			return withRepository(cmd, opts, func(ctx runContext) error {
				user, err := ctx.repo.UpdateRole(ctx, id, role)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}
}

func newDeleteCommand(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete USER_ID",
		Short: "Delete a user and its profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withRepository(cmd, opts, func(ctx runContext) error {
				if err := ctx.repo.DeleteUser(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", id)
				return nil
			})
		},
	}
}

func newListCommand(opts *app.Options) *cobra.Command {
	flags := listFlags()
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List users, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := strconv.Atoi(flags[pageFlag].GetString())
			if err != nil {
				return fmt.Errorf("invalid --%s: %w", pageFlag, err)
			}
			perPage, err := strconv.Atoi(flags[perPageFlag].GetString())
			if err != nil {
				return fmt.Errorf("invalid --%s: %w", perPageFlag, err)
			}
			return withRepository(cmd, opts, func(ctx runContext) error {
				list, err := ctx.repo.ListUsers(ctx, page, perPage)
				if err != nil {
					return err
				}
				total, err := ctx.repo.CountUsers(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, u := range list {
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Role, u.Info.FullName())
				}
				fmt.Fprintf(out, "%d of %d user(s)\n", len(list), total)
				return nil
			})
		},
	}

	cobraflags.RegisterMap(listCmd, flags)
	return listCmd
}

var patchFields = map[string]func(*users.InfoPatch, *string){
	"first_name":  func(p *users.InfoPatch, v *string) { p.FirstName = v },
	"middle_name": func(p *users.InfoPatch, v *string) { p.MiddleName = v },
	"last_name":   func(p *users.InfoPatch, v *string) { p.LastName = v },
	"username":    func(p *users.InfoPatch, v *string) { p.Username = v },
	"avatar_url":  func(p *users.InfoPatch, v *string) { p.AvatarURL = v },
	"bio":         func(p *users.InfoPatch, v *string) { p.Bio = v },
}

func parsePatch(args []string) (users.InfoPatch, error) {
	var patch users.InfoPatch
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok {
			return patch, fmt.Errorf("invalid field assignment %q (expected FIELD=VALUE)", arg)
		}
		set, ok := patchFields[strings.ReplaceAll(field, "-", "_")]
		if !ok {
			return patch, fmt.Errorf("unknown profile field %q", field)
		}
		set(&patch, &value)
	}
	return patch, nil
}

func parseUserID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	return id, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
