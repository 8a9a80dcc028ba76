package main

import (
	"github.com/spf13/cobra"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices reported by the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			devices, err := a.svc.DeviceList(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), devices)
		},
	}
}

func newOptionsCmd() *cobra.Command {
	var flagSet []string
	cmd := &cobra.Command{
		Use:   "options <device>",
		Short: "Open a device and print its option table",
		Long:  "Open a device and print its option table. --set applies key=value assignments first, in order.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments, err := parseAssignments(flagSet)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			dev, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			for _, kv := range assignments {
				if _, err := a.svc.SetOption(ctx, dev.ID, kv[0], kv[1]); err != nil {
					return err
				}
			}
			opts, err := a.svc.DeviceOptions(ctx, dev.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringArrayVar(&flagSet, "set", nil, "Option assignment key=value (repeatable)")
	return cmd
}

func newParamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params <device>",
		Short: "Open a device and print its frame parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			dev, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			params, err := a.svc.DeviceParameters(ctx, dev.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), params)
		},
	}
}
