package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/ipc"
	"github.com/eliteGoblin/focusd/focuscage/internal/policy"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage focus profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles in priority order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client, _ *zap.Logger) error {
			profiles, err := c.ListProfiles()
			if err != nil {
				return err
			}
			printProfiles(profiles)
			return nil
		})
	},
}

var profileAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a profile",
	Long: `Adds a profile. When several profiles are active at once, the one added
first wins.

Examples:
  focuscage profile add --name Work --start 09:00 --end 17:00 --days mon,tue,wed,thu,fri --preset social
  focuscage profile add --name Evening --start 19:00 --end 23:00 --strictness locked --preset steam --preset dota2`,
	RunE: runProfileAdd,
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a profile",
	Long: `Updates only the flags given. Changes that would weaken a Strict or Locked
profile inside its window, or the profile held by nuclear mode, are rejected:
disabling, lowering strictness, moving the window or removing blocked targets.`,
	Args: cobra.ExactArgs(1),
	RunE: runProfileUpdate,
}

var profileEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(args[0], true)
	},
}

var profileDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a profile",
	Long: `Disables a profile. Strict and Locked profiles cannot be disabled inside
their window, even during a temporary unlock, and the nuclear profile cannot be
disabled until the override ends.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(args[0], false)
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a profile",
	Long: `Deletes a profile. Deleting an active Locked profile requires
'focuscage profile request-delete' and a waiting period first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client, _ *zap.Logger) error {
			if err := c.DeleteProfile(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted profile %s\n", args[0])
			return nil
		})
	},
}

var profileRequestDeleteCmd = &cobra.Command{
	Use:   "request-delete <id>",
	Short: "Start the waiting period for deleting a Locked profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client, _ *zap.Logger) error {
			if cancelDelete {
				if err := c.CancelDeleteRequest(args[0]); err != nil {
					return err
				}
				fmt.Printf("Delete request for %s cancelled\n", args[0])
				return nil
			}
			readyAt, err := c.RequestDelete(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Profile %s can be deleted at %s\n", args[0], readyAt.Format("15:04:05"))
			return nil
		})
	},
}

// profileFlags are shared by add and update.
type profileFlags struct {
	name       string
	start      string
	end        string
	days       string
	strictness string
	presets    []string
	apps       []string
	sites      []string
	icon       string
	color      string
	disabled   bool
}

var (
	addFlags     profileFlags
	updateFlags  profileFlags
	cancelDelete bool
)

func (f *profileFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "Profile name")
	fs.StringVar(&f.start, "start", "09:00", "Window start (HH:MM)")
	fs.StringVar(&f.end, "end", "17:00", "Window end (HH:MM), same day")
	fs.StringVar(&f.days, "days", "all", "Active days, e.g. mon,tue,wed or all")
	fs.StringVar(&f.strictness, "strictness", string(domain.StrictnessStandard), "standard, strict or locked")
	fs.StringSliceVar(&f.presets, "preset", nil, fmt.Sprintf("Blocklist preset (%s)", strings.Join(policy.PresetIDs(), ", ")))
	fs.StringSliceVar(&f.apps, "app", nil, "Process name pattern to block")
	fs.StringSliceVar(&f.sites, "site", nil, "Domain to block")
	fs.StringVar(&f.icon, "icon", "", "Icon name")
	fs.StringVar(&f.color, "color", "", "Display color")
	fs.BoolVar(&f.disabled, "disabled", false, "Create the profile disabled")
}

func init() {
	addFlags.register(profileAddCmd.Flags())
	_ = profileAddCmd.MarkFlagRequired("name")
	updateFlags.register(profileUpdateCmd.Flags())
	profileRequestDeleteCmd.Flags().BoolVar(&cancelDelete, "cancel", false, "Cancel a pending delete request")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileUpdateCmd)
	profileCmd.AddCommand(profileEnableCmd)
	profileCmd.AddCommand(profileDisableCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileRequestDeleteCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileAdd(cmd *cobra.Command, args []string) error {
	p := domain.Profile{IsEnabled: true}
	if err := applyProfileFlags(&p, &addFlags, func(string) bool { return true }); err != nil {
		return err
	}

	return withClient(func(c *ipc.Client, logger *zap.Logger) error {
		added, err := c.AddProfile(p)
		if err != nil {
			return err
		}
		logger.Debug("profile added", zap.String("profile", added.ID))
		fmt.Printf("Added profile %s (%s)\n", added.Name, added.ID)
		return nil
	})
}

func runProfileUpdate(cmd *cobra.Command, args []string) error {
	return withClient(func(c *ipc.Client, _ *zap.Logger) error {
		profiles, err := c.ListProfiles()
		if err != nil {
			return err
		}
		p := findProfile(profiles, args[0])
		if p == nil {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, args[0])
		}

		if err := applyProfileFlags(p, &updateFlags, cmd.Flags().Changed); err != nil {
			return err
		}
		if err := c.UpdateProfile(*p); err != nil {
			return err
		}
		fmt.Printf("Updated profile %s\n", p.Name)
		return nil
	})
}

func setEnabled(id string, enabled bool) error {
	return withClient(func(c *ipc.Client, _ *zap.Logger) error {
		if err := c.SetEnabled(id, enabled); err != nil {
			return err
		}
		state := "enabled"
		if !enabled {
			state = "disabled"
		}
		fmt.Printf("Profile %s %s\n", id, state)
		return nil
	})
}

// applyProfileFlags copies the flags for which changed returns true onto p.
// Presets, apps and sites together replace the blocked targets.
func applyProfileFlags(p *domain.Profile, f *profileFlags, changed func(string) bool) error {
	if changed("name") {
		p.Name = strings.TrimSpace(f.name)
	}
	if changed("start") {
		start, err := domain.ParseClock(f.start)
		if err != nil {
			return err
		}
		p.Schedule.StartMinute = start
	}
	if changed("end") {
		end, err := domain.ParseClock(f.end)
		if err != nil {
			return err
		}
		p.Schedule.EndMinute = end
	}
	if changed("days") {
		days, err := parseDays(f.days)
		if err != nil {
			return err
		}
		p.Schedule.ActiveDays = days
	}
	if changed("strictness") {
		level := domain.StrictnessLevel(strings.ToLower(f.strictness))
		if !level.Valid() {
			return fmt.Errorf("unknown strictness %q", f.strictness)
		}
		p.Strictness = level
	}
	if changed("preset") || changed("app") || changed("site") {
		targets, err := buildTargets(f.presets, f.apps, f.sites)
		if err != nil {
			return err
		}
		p.BlockedTargets = targets
	}
	if changed("icon") {
		p.IconName = f.icon
	}
	if changed("color") {
		p.Color = f.color
	}
	if changed("disabled") {
		p.IsEnabled = !f.disabled
	}
	return nil
}

// parseDays accepts "all", "weekdays", "weekends" or a comma separated list.
func parseDays(s string) ([]domain.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return domain.AllWeekdays(), nil
	case "weekdays":
		return []domain.Weekday{domain.Monday, domain.Tuesday, domain.Wednesday, domain.Thursday, domain.Friday}, nil
	case "weekends":
		return []domain.Weekday{domain.Sunday, domain.Saturday}, nil
	}

	seen := make(map[domain.Weekday]bool)
	var days []domain.Weekday
	for _, part := range strings.Split(s, ",") {
		d, err := domain.ParseWeekday(shortDayName(part))
		if err != nil {
			return nil, err
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	return days, nil
}

// shortDayName turns "monday" or "MON" into "Mon".
func shortDayName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > 3 {
		s = s[:3]
	}
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// buildTargets merges presets with explicit apps and sites.
func buildTargets(presetIDs, apps, sites []string) (domain.BlockedTargets, error) {
	sets := make([]domain.BlockedTargets, 0, len(presetIDs)+1)
	for _, id := range presetIDs {
		preset, err := policy.LookupPreset(strings.TrimSpace(id))
		if err != nil {
			return domain.BlockedTargets{}, err
		}
		sets = append(sets, preset.Targets())
	}
	sets = append(sets, domain.BlockedTargets{Apps: apps, Websites: sites})
	return policy.MergeTargets(sets...), nil
}

func findProfile(profiles []domain.Profile, id string) *domain.Profile {
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i]
		}
	}
	return nil
}

func printProfiles(profiles []domain.Profile) {
	fmt.Println("\n=== Profiles ===")
	if len(profiles) == 0 {
		fmt.Println("\nNo profiles. Add one with 'focuscage profile add'.")
	}
	now := time.Now()
	for i, p := range profiles {
		state := "enabled"
		if !p.IsEnabled {
			state = "disabled"
		}
		fmt.Printf("\n%d. [%s] %s (%s, %s)\n", i+1, p.ID, p.Name, p.Strictness, state)
		fmt.Printf("  Schedule: %s\n", p.Schedule)
		fmt.Printf("  Unlock state: %s\n", p.UnlockState(now))
		if len(p.BlockedTargets.Apps) > 0 {
			fmt.Printf("  Apps: %s\n", strings.Join(p.BlockedTargets.Apps, ", "))
		}
		if len(p.BlockedTargets.Websites) > 0 {
			fmt.Printf("  Websites: %s\n", strings.Join(p.BlockedTargets.Websites, ", "))
		}
	}
	fmt.Println("\n================")
}
