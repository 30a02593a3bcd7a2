package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/surreal-wow/sdbeditor/internal/supervisor"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage the game server process tree",
	Long: `Inspect and control the managed services (auth, world, armory) directly,
without going through the starter API. Status is read from the process
table; start and stop act on the binaries named in starter-config.json.`,
}

var serversStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every managed service",
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, err := newSupervisor()
		if err != nil {
			return err
		}
		statuses, err := sup.StatusAll()
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(statuses)
			return nil
		}
		fmt.Println(renderStatusTable(statuses))
		return nil
	},
}

var serversStartCmd = &cobra.Command{
	Use:   "start <service>",
	Short: "Start a managed service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, err := newSupervisor()
		if err != nil {
			return err
		}
		pid, err := sup.Start(args[0])
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("%s started (pid %d)", args[0], pid)))
		return nil
	},
}

var serversStopCmd = &cobra.Command{
	Use:   "stop <service>",
	Short: "Stop a managed service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, err := newSupervisor()
		if err != nil {
			return err
		}
		stopped, err := sup.Stop(args[0])
		if err != nil {
			return err
		}
		if len(stopped) == 0 {
			fmt.Println(mutedStyle.Render(args[0] + " was not running"))
			return nil
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("%s stopped (pids %s)", args[0], joinPIDs(stopped))))
		return nil
	},
}

var serversRestartCmd = &cobra.Command{
	Use:   "restart <service>",
	Short: "Restart a managed service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, err := newSupervisor()
		if err != nil {
			return err
		}
		pid, err := sup.Restart(args[0])
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("%s restarted (pid %d)", args[0], pid)))
		return nil
	},
}

func newSupervisor() (*supervisor.Supervisor, error) {
	scfg, err := loadStarterConfig()
	if err != nil {
		return nil, err
	}
	return supervisor.New(scfg, log), nil
}

func renderStatusTable(statuses []supervisor.ServiceStatus) string {
	rows := make([]string, 0, len(statuses)+1)
	rows = append(rows, boldStyle.Render(fmt.Sprintf("%-10s %-9s %s", "SERVICE", "STATE", "PIDS")))
	for _, st := range statuses {
		state := failStyle.Render(fmt.Sprintf("%-9s", "stopped"))
		if st.Running {
			state = okStyle.Render(fmt.Sprintf("%-9s", "running"))
		}
		pids := mutedStyle.Render("-")
		if len(st.PIDs) > 0 {
			pids = joinPIDs(st.PIDs)
		}
		rows = append(rows, fmt.Sprintf("%-10s %s %s", st.Name, state, pids))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func joinPIDs(pids []int) string {
	return strings.Join(lo.Map(pids, func(pid int, _ int) string {
		return strconv.Itoa(pid)
	}), ", ")
}

func init() {
	serversCmd.AddCommand(serversStatusCmd)
	serversCmd.AddCommand(serversStartCmd)
	serversCmd.AddCommand(serversStopCmd)
	serversCmd.AddCommand(serversRestartCmd)
	rootCmd.AddCommand(serversCmd)
}
