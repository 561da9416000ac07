package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/config"
	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/infra"
	"github.com/eliteGoblin/focusd/focuscage/internal/ipc"
	"github.com/eliteGoblin/focusd/focuscage/internal/usecase"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active profile and per-profile unlock state",
	Long: `Shows what is enforced right now. When the daemon is not running the
last published snapshot is shown instead.`,
	RunE: runStatus,
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Temporarily unlock a Strict profile",
}

var unlockRequestCmd = &cobra.Command{
	Use:   "request <id>",
	Short: "Request an unlock; it takes effect after the cooldown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client, _ *zap.Logger) error {
			result, err := c.RequestUnlock(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Cooldown running until %s\n", result.CooldownEndAt.Local().Format("15:04:05"))
			fmt.Printf("Unlocks left this session: %d of %d\n", result.RemainingUnlocks, result.MaxUnlocks)
			return nil
		})
	},
}

var unlockCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Abandon a pending unlock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client, _ *zap.Logger) error {
			if err := c.CancelUnlock(args[0]); err != nil {
				return err
			}
			fmt.Println("Unlock cancelled")
			return nil
		})
	},
}

var nuclearCmd = &cobra.Command{
	Use:   "nuclear",
	Short: "Force a profile active for one hour, ignoring its schedule",
}

var nuclearActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Start the override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client, _ *zap.Logger) error {
			endAt, err := c.ActivateNuclear(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Nuclear override on %s until %s\n", args[0], endAt.Format("15:04:05"))
			return nil
		})
	},
}

var nuclearDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "End the override early",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client, _ *zap.Logger) error {
			if err := c.DeactivateNuclear(); err != nil {
				return err
			}
			fmt.Println("Nuclear override ended")
			return nil
		})
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Reconcile against the clock now",
	Long:  `Asks the daemon to re-evaluate schedules immediately. Use --resume after waking from sleep.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client, _ *zap.Logger) error {
			if tickResume {
				if err := c.Resume(); err != nil {
					return err
				}
				fmt.Println("Resync requested")
				return nil
			}
			active, err := c.Tick()
			if err != nil {
				return err
			}
			if active == "" {
				fmt.Println("No profile active")
			} else {
				fmt.Printf("Active profile: %s\n", active)
			}
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show focus statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client, _ *zap.Logger) error {
			summary, err := c.Stats()
			if err != nil {
				return err
			}
			printStats(summary)
			return nil
		})
	},
}

var tickResume bool

func init() {
	tickCmd.Flags().BoolVar(&tickResume, "resume", false, "Re-announce the current state after sleep")

	unlockCmd.AddCommand(unlockRequestCmd)
	unlockCmd.AddCommand(unlockCancelCmd)
	nuclearCmd.AddCommand(nuclearActivateCmd)
	nuclearCmd.AddCommand(nuclearDeactivateCmd)

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(nuclearCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(statsCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := ipc.Dial(cfg.Bus == config.BusSystem)
	if err == nil {
		defer client.Close()
	}
	if err != nil || !client.Running() {
		return printOfflineStatus(cfg)
	}

	report, err := client.Status()
	if err != nil {
		return err
	}
	fmt.Print(formatStatus(report))
	return nil
}

func printOfflineStatus(cfg config.Config) error {
	fmt.Println("\n=== focuscage Status ===")
	fmt.Println("Daemon: NOT RUNNING")
	fmt.Println("\nRun 'focuscage start' to enable scheduling.")

	snapshot, err := infra.NewFileMirror(cfg.DataDir).Load()
	if err != nil {
		return err
	}
	if snapshot == nil {
		fmt.Println("========================")
		return nil
	}

	if snapshot.LastHeartbeat > 0 {
		lastBeat := time.Unix(snapshot.LastHeartbeat, 0)
		fmt.Printf("\nLast heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
	}
	if snapshot.Active != nil {
		fmt.Printf("Last active profile: %s (until %s)\n",
			snapshot.Active.Name, snapshot.Active.EndAt.Local().Format("15:04"))
	}
	fmt.Printf("Profiles: %d\n", len(snapshot.Profiles))
	fmt.Println("========================")
	return nil
}

// formatStatus renders a status report for the terminal.
func formatStatus(r usecase.StatusReport) string {
	var b strings.Builder
	b.WriteString("\n=== focuscage Status ===\n")
	b.WriteString("Daemon: RUNNING\n")
	if r.Degraded {
		b.WriteString("Store: UNREADABLE, changes are not saved\n")
	}

	if r.Active == nil {
		b.WriteString("\nActive: none\n")
	} else {
		fmt.Fprintf(&b, "\nActive: %s (%s)", r.Active.Name, r.Active.Strictness)
		if r.Active.Nuclear {
			b.WriteString(" [nuclear]")
		}
		b.WriteString("\n")
		if r.TimeRemaining != "" {
			fmt.Fprintf(&b, "        %s\n", r.TimeRemaining)
		}
	}
	if r.Upcoming != nil {
		fmt.Fprintf(&b, "Next: %s at %s\n", r.Upcoming.Name, r.Upcoming.StartAt.Local().Format("15:04"))
	}

	if len(r.Profiles) > 0 {
		b.WriteString("\nProfiles:\n")
	}
	for _, p := range r.Profiles {
		marker := " "
		if p.Active {
			marker = "*"
		}
		fmt.Fprintf(&b, " %s %s [%s] %s, %s", marker, p.Name, p.ID, p.Strictness, p.Schedule)
		if !p.Enabled {
			b.WriteString(", disabled")
		}
		if p.Protected {
			b.WriteString(", protected")
		}
		b.WriteString("\n")

		switch p.UnlockState {
		case domain.UnlockCoolingDown:
			fmt.Fprintf(&b, "     cooling down until %s\n", p.CooldownEndAt.Local().Format("15:04:05"))
		case domain.UnlockTemporarilyUnlocked:
			fmt.Fprintf(&b, "     unlocked until %s\n", p.TemporaryUnlockEndAt.Local().Format("15:04:05"))
		}
		if p.Strictness == domain.StrictnessStrict {
			fmt.Fprintf(&b, "     unlocks left: %d\n", p.RemainingUnlocks)
		}
		if p.DeleteReadyAt != nil {
			fmt.Fprintf(&b, "     deletable at %s\n", p.DeleteReadyAt.Local().Format("15:04:05"))
		} else if p.DeleteWait > 0 {
			fmt.Fprintf(&b, "     delete needs a %s wait\n", p.DeleteWait)
		}
	}

	if e := r.LastEnforcement; e != nil {
		fmt.Fprintf(&b, "\nLast sweep: %s, %d killed", e.At.Local().Format("15:04:05"), len(e.KilledPIDs))
		if len(e.Errors) > 0 {
			fmt.Fprintf(&b, ", %d errors", len(e.Errors))
		}
		b.WriteString("\n")
	}
	b.WriteString("========================\n")
	return b.String()
}

func printStats(s usecase.StatsSummary) {
	fmt.Println("\n=== Focus Statistics ===")
	if s.CurrentProfileName != "" {
		fmt.Printf("Focusing now: %s\n", s.CurrentProfileName)
	}
	fmt.Printf("Today: %.1fh\n", s.HoursToday)
	fmt.Printf("This week: %.1fh\n", s.HoursThisWeek)
	fmt.Printf("Sessions: %d (%.0f%% completed)\n", s.TotalSessions, s.CompletionRate*100)
	fmt.Printf("Streak: %d days (longest %d)\n", s.CurrentStreak, s.LongestStreak)
	if s.MostUsedProfile != "" {
		fmt.Printf("Most used: %s (%d sessions)\n", s.MostUsedProfile, s.MostUsedCount)
	}
	if len(s.Daily) > 0 {
		fmt.Println("\nLast days:")
		for _, d := range s.Daily {
			fmt.Printf("  %s  %5.1fh\n", d.Date.Format("Mon 01-02"), d.Hours)
		}
	}
	fmt.Println("========================")
}
