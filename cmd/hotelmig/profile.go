package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
)

const dateLayout = "2006-01-02"

// profileFile is the YAML form of a connection profile
type profileFile struct {
	models.ConnectionProfile `yaml:",inline"`
	CutoverDate              string `yaml:"cutover_date"`
}

var profileFlags struct {
	file            string
	name            string
	host            string
	port            int
	protocol        string
	database        string
	username        string
	password        string
	cutoverDate     string
	cutoverOperator string
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage connection profiles",
}

var profileCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Verify a legacy connection and store it as a profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pf, err := loadProfileFile(profileFlags.file)
		if err != nil {
			return err
		}
		applyProfileFlags(cmd, pf)

		if pf.Protocol == "" {
			pf.Protocol = remote.ProtocolJSONRPC
		}
		if pf.CutoverOperator == "" {
			pf.CutoverOperator = models.CutoverBefore
		}
		if pf.CutoverDate == "" {
			return fmt.Errorf("cutover date is required")
		}
		date, err := time.Parse(dateLayout, pf.CutoverDate)
		if err != nil {
			return fmt.Errorf("invalid cutover date %q (want YYYY-MM-DD)", pf.CutoverDate)
		}
		p := pf.ConnectionProfile
		p.CutoverDate = date

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.orch.CreateProfile(cmd.Context(), &p); err != nil {
			return err
		}
		return printJSON(p)
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [profile]",
	Short: "Show one profile, or list all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if len(args) == 0 {
			profiles, err := a.store.ListProfiles(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(profiles)
		}

		p, err := a.profile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("profile %s: %w", args[0], err)
		}
		return printJSON(p)
	},
}

var profileCutoverCmd = &cobra.Command{
	Use:   "cutover <profile> <date> <before|on-or-after>",
	Short: "Change a profile's cutover date and operator",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := time.Parse(dateLayout, args[1])
		if err != nil {
			return fmt.Errorf("invalid cutover date %q (want YYYY-MM-DD)", args[1])
		}
		op, err := models.ParseCutoverOperator(args[2])
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		p, err := a.profile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("profile %s: %w", args[0], err)
		}
		if err := a.store.UpdateCutover(cmd.Context(), p.ID, date, op); err != nil {
			return err
		}

		a.logger.Info().Str("profile", p.Name).Str("cutover_date", args[1]).Str("cutover_operator", string(op)).Msg("Cutover updated")
		return nil
	},
}

func init() {
	f := profileCreateCmd.Flags()
	f.StringVarP(&profileFlags.file, "file", "f", "", "YAML profile file; flags override its values")
	f.StringVar(&profileFlags.name, "name", "", "profile name")
	f.StringVar(&profileFlags.host, "host", "", "legacy server host")
	f.IntVar(&profileFlags.port, "port", 8069, "legacy server port")
	f.StringVar(&profileFlags.protocol, "protocol", remote.ProtocolJSONRPC, "jsonrpc or jsonrpc+ssl")
	f.StringVar(&profileFlags.database, "database", "", "legacy database name")
	f.StringVar(&profileFlags.username, "username", "", "legacy login")
	f.StringVar(&profileFlags.password, "password", "", "legacy password")
	f.StringVar(&profileFlags.cutoverDate, "cutover-date", "", "cutover date, YYYY-MM-DD")
	f.StringVar(&profileFlags.cutoverOperator, "cutover-operator", string(models.CutoverBefore), "before or on-or-after")

	profileCmd.AddCommand(profileCreateCmd, profileShowCmd, profileCutoverCmd)
}

func loadProfileFile(path string) (*profileFile, error) {
	pf := &profileFile{}
	if path == "" {
		pf.Port = 8069
		return pf, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile file: %w", err)
	}
	if err := yaml.Unmarshal(data, pf); err != nil {
		return nil, fmt.Errorf("parse profile file %s: %w", path, err)
	}
	return pf, nil
}

// applyProfileFlags copies the flags given on the command line over the
// file values; without a file every flag applies with its default.
func applyProfileFlags(cmd *cobra.Command, pf *profileFile) {
	set := func(name string) bool {
		return profileFlags.file == "" || cmd.Flags().Changed(name)
	}
	if set("name") {
		pf.Name = profileFlags.name
	}
	if set("host") {
		pf.Host = profileFlags.host
	}
	if set("port") {
		pf.Port = profileFlags.port
	}
	if set("protocol") {
		pf.Protocol = profileFlags.protocol
	}
	if set("database") {
		pf.Database = profileFlags.database
	}
	if set("username") {
		pf.Username = profileFlags.username
	}
	if set("password") {
		pf.Password = profileFlags.password
	}
	if set("cutover-date") {
		pf.CutoverDate = profileFlags.cutoverDate
	}
	if set("cutover-operator") {
		pf.CutoverOperator = models.CutoverOperator(profileFlags.cutoverOperator)
	}
}
