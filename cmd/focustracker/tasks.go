package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yourname/focustracker/internal"
)

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage the local task read model",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import [file]",
		Short: "Upsert tasks from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var tasks []internal.Task
			if err := json.Unmarshal(raw, &tasks); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			d, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			for i := range tasks {
				if tasks[i].ID == "" || tasks[i].OwnerID == "" {
					return fmt.Errorf("task %d: id and owner_id are required", i)
				}
				if err := d.store.SaveTask(cmd.Context(), &tasks[i]); err != nil {
					return fmt.Errorf("task %s: %w", tasks[i].ID, err)
				}
			}
			fmt.Printf("imported %d tasks\n", len(tasks))
			return nil
		},
	})
	return cmd
}
