package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pastewire/connectivity"
	"github.com/hazyhaar/pastewire/orchestrator"
)

// reply mirrors the daemon's {success, error, data} answer.
type reply struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type presetView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	Selector   string `json:"selector"`
	AutoSubmit bool   `json:"autoSubmit"`
	ReuseTab   bool   `json:"reuseTab"`
}

type itemView struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
	Title    string `json:"title"`
	Kind     string `json:"kind"`
	Enabled  bool   `json:"enabled"`
}

// request calls service on the daemon and decodes its data into dst.
func request(ctx context.Context, service string, req, dst any) error {
	router := orchestrator.RemoteRouter(addr, 3*time.Minute, connectivity.WithLogger(newLogger()))
	return requestVia(ctx, router, service, req, dst)
}

func requestVia(ctx context.Context, router *connectivity.Router, service string, req, dst any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := router.Call(ctx, service, payload)
	if err != nil {
		return err
	}
	var r reply
	if err := json.Unmarshal(resp, &r); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if !r.Success {
		return errors.New(r.Error)
	}
	if dst != nil && len(r.Data) > 0 {
		return json.Unmarshal(r.Data, dst)
	}
	return nil
}

func clientContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Minute)
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Show the menu and the enabled state of each item",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := clientContext()
		defer cancel()
		var items []itemView
		if err := request(ctx, orchestrator.ServiceMenu, nil, &items); err != nil {
			return err
		}
		printMenu(cmd.OutOrStdout(), items)
		return nil
	},
}

func printMenu(w io.Writer, items []itemView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, it := range items {
		mark := " "
		if it.Enabled {
			mark = "x"
		}
		indent := ""
		if it.ParentID != "" {
			indent = "  "
		}
		fmt.Fprintf(tw, "[%s]\t%s%s\t%s\n", mark, indent, it.Title, it.ID)
	}
	tw.Flush()
}

var clickFlags struct {
	page string
	text string
}

var clickCmd = &cobra.Command{
	Use:   "click <item-id>",
	Short: "Click a menu item (a preset id, add_paste_target, refresh_status or configure)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := clientContext()
		defer cancel()
		return request(ctx, orchestrator.ServiceClick, orchestrator.Click{
			ItemID:        args[0],
			PageID:        clickFlags.page,
			SelectionText: clickFlags.text,
		}, nil)
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the menu from the saved presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := clientContext()
		defer cancel()
		return request(ctx, orchestrator.ServiceRequestMenuRebuild, nil, nil)
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List saved paste targets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := clientContext()
		defer cancel()
		var list []presetView
		if err := request(ctx, orchestrator.ServiceListPresets, nil, &list); err != nil {
			return err
		}
		printPresets(cmd.OutOrStdout(), list)
		return nil
	},
}

func printPresets(w io.Writer, list []presetView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tURL\tSELECTOR\tSUBMIT\tREUSE")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%t\n", p.ID, p.Name, p.URL, p.Selector, p.AutoSubmit, p.ReuseTab)
	}
	tw.Flush()
}

var addFlags orchestrator.AddPresetRequest

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a paste target",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := clientContext()
		defer cancel()
		var added presetView
		if err := request(ctx, orchestrator.ServiceAddPreset, addFlags, &added); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", added.ID, added.Name)
		return nil
	},
}

var updateFlags struct {
	name       string
	autoSubmit bool
	reuseTab   bool
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit a paste target's name, auto-submit or reuse-tab",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := clientContext()
		defer cancel()
		req := orchestrator.UpdatePresetRequest{ID: args[0]}
		f := cmd.Flags()
		if f.Changed("name") {
			req.Name = &updateFlags.name
		}
		if f.Changed("auto-submit") {
			req.AutoSubmit = &updateFlags.autoSubmit
		}
		if f.Changed("reuse-tab") {
			req.ReuseTab = &updateFlags.reuseTab
		}
		return request(ctx, orchestrator.ServiceUpdatePreset, req, nil)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a paste target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := clientContext()
		defer cancel()
		return request(ctx, orchestrator.ServiceDeletePreset, map[string]string{"id": args[0]}, nil)
	},
}

func init() {
	clickCmd.Flags().StringVar(&clickFlags.page, "page", "", "page id the menu was opened on (default: active page)")
	clickCmd.Flags().StringVar(&clickFlags.text, "text", "", "text to paste (default: the page's selection)")

	af := addCmd.Flags()
	af.StringVar(&addFlags.Name, "name", "", "menu title")
	af.StringVar(&addFlags.URL, "url", "", "page URL to open or reuse")
	af.StringVar(&addFlags.Selector, "selector", "", "CSS selector of the target field")
	af.BoolVar(&addFlags.AutoSubmit, "auto-submit", true, "submit the form after writing")
	af.BoolVar(&addFlags.ReuseTab, "reuse-tab", false, "reuse an open tab of the same origin")
	for _, name := range []string{"name", "url", "selector"} {
		addCmd.MarkFlagRequired(name)
	}

	uf := updateCmd.Flags()
	uf.StringVar(&updateFlags.name, "name", "", "new menu title")
	uf.BoolVar(&updateFlags.autoSubmit, "auto-submit", false, "submit the form after writing")
	uf.BoolVar(&updateFlags.reuseTab, "reuse-tab", false, "reuse an open tab of the same origin")
}
