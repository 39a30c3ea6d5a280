package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/hbomb79/Tasaveer/internal"
	"github.com/hbomb79/Tasaveer/internal/classify"
	"github.com/hbomb79/Tasaveer/internal/event"
	"github.com/hbomb79/Tasaveer/internal/ingest"
	"github.com/hbomb79/Tasaveer/internal/tags"
	"github.com/hbomb79/Tasaveer/internal/watch"
	"github.com/hbomb79/Tasaveer/pkg/logger"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

const quietAnnotation = "quiet"

var (
	configPath string
	verbose    bool
	config     internal.TasaveerConfig

	statusColor  = color.New(color.FgCyan, color.Bold)
	failureColor = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
)

// main() is the entry point to the program, from here will
// we load the users Tasaveer configuration and dispatch to
// the requested command
func main() {
	rootCmd := &cobra.Command{
		Use:           "tasaveer",
		Short:         "Ingest media in to a tagged, date-organised archive",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case verbose:
				logger.SetMinLoggingLevel(logger.VERBOSE.Level())
			case cmd.Annotations[quietAnnotation] != "":
				logger.SetMinLoggingLevel(logger.WARNING.Level())
			default:
				logger.SetMinLoggingLevel(logger.INFO.Level())
			}

			return config.LoadFromFile(configPath)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", internal.DefaultConfigPath(), "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "emit verbose developer logging")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(tagsCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(watchCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		failureColor.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func quiet() map[string]string {
	return map[string]string{quietAnnotation: "true"}
}

func ingestCmd() *cobra.Command {
	var dateFormat string

	cmd := &cobra.Command{
		Use:         "ingest SOURCE [DEST]",
		Short:       "Copy, tag and organise a source folder in to the archive",
		Args:        cobra.RangeArgs(1, 2),
		Annotations: quiet(),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := request(args, dateFormat)
			if err != nil {
				return err
			}

			tasaveer := internal.New(config)
			tasaveer.EventBus().RegisterHandlerFunction(event.INGEST_LOG, func(_ event.Event, payload event.Payload) {
				for _, line := range payload.(event.LogBatch).Lines {
					fmt.Println(line)
				}
			})
			tasaveer.EventBus().RegisterHandlerFunction(event.INGEST_STATUS, func(_ event.Event, payload event.Payload) {
				change := payload.(event.StatusChange)
				statusColor.Printf("==> %s\n", strings.ToUpper(change.Status))
			})

			snapshot, err := tasaveer.Ingest(cmd.Context(), req)
			if err != nil {
				return err
			}

			switch {
			case snapshot.Status == ingest.Success:
				successColor.Printf("Ingest %s complete\n", snapshot.ID)
				return nil
			case snapshot.CancelRequested:
				return errors.New("ingest cancelled")
			default:
				return fmt.Errorf("ingest failed: %s", snapshot.Error)
			}
		},
	}

	cmd.Flags().StringVar(&dateFormat, "date-format", "", "strftime layout of the organised folders")
	return cmd
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "scan SOURCE",
		Short:       "Group a source folder's media by camera and directory",
		Args:        cobra.ExactArgs(1),
		Annotations: quiet(),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := absolutePath(args[0])
			if err != nil {
				return err
			}

			result, err := internal.New(config).Orchestrator().ScanForTags(cmd.Context(), source)
			if err != nil {
				return err
			}

			fmt.Printf("%d media files\n", result.Total)
			printGroups("Cameras", result.Cameras)
			printGroups("Directories", result.Directories)
			return nil
		},
	}
}

func printGroups(title string, groups []classify.Group) {
	fmt.Printf("\n%s:\n", title)
	if len(groups) == 0 {
		fmt.Println("  (none)")
		return
	}

	width := 0
	for _, group := range groups {
		width = max(width, len(group.Key))
	}
	for _, group := range groups {
		fmt.Printf("  %-*s %6d", width, group.Key, group.Count)
		if group.TagName != "" {
			fmt.Printf("  [%s]", group.TagName)
		}
		fmt.Println()
	}
}

func tagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Manage the tags applied to ingested media",
	}

	list := &cobra.Command{
		Use:         "list",
		Short:       "List every tag and its aliases",
		Args:        cobra.NoArgs,
		Annotations: quiet(),
		RunE: func(*cobra.Command, []string) error {
			all := internal.New(config).Tags().Tags()
			if len(all) == 0 {
				fmt.Println("No tags")
				return nil
			}

			for _, tag := range all {
				statusColor.Printf("%s", tag.Name)
				if tag.Color != "" {
					fmt.Printf(" (%s)", tag.Color)
				}
				fmt.Printf("  %s\n", tag.ID)
				for _, alias := range tag.CameraAliases {
					fmt.Printf("  camera:    %s\n", alias)
				}
				for _, alias := range tag.DirectoryAliases {
					fmt.Printf("  directory: %s\n", alias)
				}
			}
			return nil
		},
	}

	var tagColor string
	create := &cobra.Command{
		Use:         "create NAME",
		Short:       "Create a tag",
		Args:        cobra.ExactArgs(1),
		Annotations: quiet(),
		RunE: func(_ *cobra.Command, args []string) error {
			tag, err := internal.New(config).Tags().Create(args[0], tagColor)
			if err != nil {
				return err
			}

			successColor.Printf("Created tag %s (%s)\n", tag.Name, tag.ID)
			return nil
		},
	}
	create.Flags().StringVar(&tagColor, "color", "", "display colour of the tag")

	remove := &cobra.Command{
		Use:         "delete NAME",
		Short:       "Delete a tag and release its aliases",
		Args:        cobra.ExactArgs(1),
		Annotations: quiet(),
		RunE: func(_ *cobra.Command, args []string) error {
			store := internal.New(config).Tags()
			tag, err := findTag(store, args[0])
			if err != nil {
				return err
			}
			if err := store.Delete(tag.ID); err != nil {
				return err
			}

			successColor.Printf("Deleted tag %s\n", tag.Name)
			return nil
		},
	}

	cmd.AddCommand(list, create, remove,
		aliasCmd("camera MODEL TAG", "Tag media shot on a camera model", (*tags.Store).AssignCameraAlias),
		aliasCmd("directory KEY TAG", "Tag media found beneath a source directory", (*tags.Store).AssignDirectoryAlias),
	)
	return cmd
}

func aliasCmd(use string, short string, assign func(*tags.Store, string, string) error) *cobra.Command {
	return &cobra.Command{
		Use:         use,
		Short:       short,
		Args:        cobra.ExactArgs(2),
		Annotations: quiet(),
		RunE: func(_ *cobra.Command, args []string) error {
			store := internal.New(config).Tags()
			tag, err := findTag(store, args[1])
			if err != nil {
				return err
			}
			if err := assign(store, args[0], tag.ID); err != nil {
				return err
			}

			successColor.Printf("%s is now tagged %s\n", args[0], tag.Name)
			return nil
		},
	}
}

// findTag looks a tag up by name, suggesting a similar name if there is
// no exact match.
func findTag(store *tags.Store, name string) (tags.Tag, error) {
	if tag, ok := store.Find(name); ok {
		return tag, nil
	}

	if suggestion, ok := store.Suggest(name); ok {
		return tags.Tag{}, fmt.Errorf("%w: %q (did you mean %q?)", tags.ErrTagNotFound, name, suggestion)
	}

	return tags.Tag{}, fmt.Errorf("%w: %q", tags.ErrTagNotFound, name)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST and WebSocket API, watching any configured targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return internal.New(config).Serve(cmd.Context())
		},
	}
}

func watchCmd() *cobra.Command {
	var dateFormat string

	cmd := &cobra.Command{
		Use:   "watch SOURCE [DEST]",
		Short: "Ingest a source folder each time new media settles in it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := request(args, dateFormat)
			if err != nil {
				return err
			}

			tasaveer := internal.New(config)
			tasaveer.EventBus().RegisterHandlerFunction(event.INGEST_LOG, func(_ event.Event, payload event.Payload) {
				for _, line := range payload.(event.LogBatch).Lines {
					fmt.Println(line)
				}
			})

			return tasaveer.Watch(cmd.Context(), watch.Target{
				Source:      req.Source,
				Destination: req.Destination,
				DateFormat:  req.DateFormat,
			})
		},
	}

	cmd.Flags().StringVar(&dateFormat, "date-format", "", "strftime layout of the organised folders")
	return cmd
}

func request(args []string, dateFormat string) (ingest.Request, error) {
	source, err := absolutePath(args[0])
	if err != nil {
		return ingest.Request{}, err
	}

	var given string
	if len(args) > 1 {
		given = args[1]
	}
	destination, err := config.Destination(given)
	if err != nil {
		return ingest.Request{}, err
	}
	if destination, err = absolutePath(destination); err != nil {
		return ingest.Request{}, err
	}

	return ingest.Request{Source: source, Destination: destination, DateFormat: dateFormat}, nil
}

func absolutePath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}

	return filepath.Abs(expanded)
}
