package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/waabox/pipegraph/internal/layout"
	"github.com/waabox/pipegraph/internal/logging"
	"github.com/waabox/pipegraph/internal/snapshot"
)

type layoutFlags struct {
	view      string
	highlight string
	format    string
}

func newLayoutCmd() *cobra.Command {
	var flags layoutFlags
	cmd := &cobra.Command{
		Use:   "layout FILE",
		Short: "Print the columns of a pipeline snapshot",
		Long: `Lays out a pipeline read from FILE without contacting GitLab. FILE is
either a saved getPipelineDetails GraphQL response (.json) or a
.gitlab-ci.yml definition (.yml, .yaml).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := layout.ParseViewType(flags.view)
			if err != nil {
				return err
			}
			if flags.format != "text" && flags.format != "yaml" {
				return fmt.Errorf("invalid output format %q: must be 'text' or 'yaml'", flags.format)
			}
			p, err := snapshot.LoadFile(args[0])
			if err != nil {
				return err
			}
			logger, err := logging.New(cmd.ErrOrStderr(), "pipegraph", "warn")
			if err != nil {
				return err
			}
			adapter := layout.Adapter{Logger: logger}
			l := adapter.Build(layout.NewSnapshot(p), view, flags.highlight)
			if flags.format == "yaml" {
				return writeLayoutYAML(cmd.OutOrStdout(), l)
			}
			writeLayoutText(cmd.OutOrStdout(), l)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.view, "view", "stage", "view to lay out: stage or layer")
	cmd.Flags().StringVar(&flags.highlight, "highlight", "", "job or group whose dependencies are highlighted")
	cmd.Flags().StringVarP(&flags.format, "format", "o", "text", "output format: text or yaml")
	return cmd
}

type layoutDoc struct {
	View     string      `yaml:"view"`
	Links    int         `yaml:"links"`
	Fallback string      `yaml:"fallback,omitempty"`
	Columns  []columnDoc `yaml:"columns"`
}

type columnDoc struct {
	Kind   string      `yaml:"kind"`
	Title  string      `yaml:"title,omitempty"`
	Layer  int         `yaml:"layer"`
	Groups []groupDoc  `yaml:"groups,omitempty"`
	Linked []linkedDoc `yaml:"linked,omitempty"`
}

type groupDoc struct {
	Name   string   `yaml:"name"`
	Size   int      `yaml:"size"`
	Status string   `yaml:"status"`
	Dimmed bool     `yaml:"dimmed,omitempty"`
	Jobs   []string `yaml:"jobs"`
}

type linkedDoc struct {
	Project string `yaml:"project"`
	IID     string `yaml:"iid"`
	Status  string `yaml:"status"`
	Label   string `yaml:"label,omitempty"`
}

var columnKinds = map[layout.ColumnKind]string{
	layout.ColumnUpstream:   "upstream",
	layout.ColumnStage:      "stage",
	layout.ColumnLayer:      "layer",
	layout.ColumnDownstream: "downstream",
}

func toLayoutDoc(l layout.Layout) layoutDoc {
	doc := layoutDoc{View: string(l.View), Links: l.Links}
	if l.Fallback != nil {
		doc.Fallback = l.Fallback.Error()
	}
	for _, c := range l.Columns {
		cd := columnDoc{Kind: columnKinds[c.Kind], Title: c.Title, Layer: c.Layer}
		for _, g := range c.Groups {
			gd := groupDoc{Name: g.Name, Size: g.Size, Status: string(g.Status.Kind), Dimmed: c.GroupDimmed(g)}
			for _, j := range g.Jobs {
				gd.Jobs = append(gd.Jobs, j.Name)
			}
			cd.Groups = append(cd.Groups, gd)
		}
		for _, e := range c.Linked {
			cd.Linked = append(cd.Linked, linkedDoc{
				Project: e.Pipeline.ProjectPath,
				IID:     string(e.Pipeline.IID),
				Status:  string(e.Pipeline.Status.Kind),
				Label:   e.Label,
			})
		}
		doc.Columns = append(doc.Columns, cd)
	}
	return doc
}

func writeLayoutYAML(w io.Writer, l layout.Layout) error {
	out, err := yaml.Marshal(toLayoutDoc(l))
	if err != nil {
		return fmt.Errorf("encoding layout: %w", err)
	}
	_, err = w.Write(out)
	return err
}

func writeLayoutText(w io.Writer, l layout.Layout) {
	if l.Fallback != nil {
		fmt.Fprintf(w, "warning: showing stages: %v\n", l.Fallback)
	}
	for i, c := range toLayoutDoc(l).Columns {
		title := c.Title
		if title == "" {
			title = fmt.Sprintf("layer %d", c.Layer)
		}
		fmt.Fprintf(w, "[%s] %s\n", c.Kind, title)
		for _, g := range c.Groups {
			mark := " "
			if g.Dimmed {
				mark = "."
			}
			fmt.Fprintf(w, " %s %-10s %s", mark, g.Status, g.Name)
			if g.Size > 1 {
				fmt.Fprintf(w, " (%s)", strings.Join(g.Jobs, ", "))
			}
			fmt.Fprintln(w)
		}
		for _, e := range c.Linked {
			fmt.Fprintf(w, "   %-10s %s #%s\n", e.Status, e.Project, e.IID)
		}
		if i < len(l.Columns)-1 {
			fmt.Fprintln(w)
		}
	}
}
