package cmd

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Polymer/tools-common/pkg/tasks"
)

var taskCmd = &cobra.Command{
	Use:   "task [tasks...]",
	Short: "Runs the named build tasks",
	Long: `Runs the given build tasks against the current project. Without arguments
the available tasks are listed. The project directory is the first parent
directory that contains a tools.yml or package.json file; a tasks.star file
there can declare additional tasks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		logger := zerolog.New(NewConsoleWriter())
		ctx := tasks.WithLogger(context.Background(), &logger)

		projectDir, err := findProjectDir()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to determine the project directory")
		}

		opts, err := loadOptions(projectDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load tools.yml")
		}

		reg := tasks.NewRegistry()
		err = tasks.RegisterAll(reg, opts)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to set up tasks")
		}

		scriptPath := filepath.Join(projectDir, "tasks.star")
		if _, err := os.Stat(scriptPath); err == nil {
			err = tasks.LoadScript(ctx, reg, projectDir, scriptPath)
			if err != nil {
				logger.Fatal().Err(err).Msg("Failed to load tasks.star")
			}
		}

		if len(args) == 0 {
			listTasks(reg)
			return nil
		}

		ctx = tasks.NewRunContext(ctx, dryRun, force)
		for _, name := range args {
			err = reg.Run(ctx, name)
			if err != nil {
				logger.Fatal().Err(err).Msgf("Failed task %s:", name)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	taskCmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
}

func findProjectDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", eris.Wrap(err, "Failed to retrieve the current working directory")
	}

	path := wd
	for {
		for _, marker := range []string{"tools.yml", "package.json"} {
			_, err := os.Stat(filepath.Join(path, marker))
			if err == nil {
				return path, nil
			}
			if !eris.Is(err, os.ErrNotExist) {
				return "", eris.Wrapf(err, "Failed to check %s", filepath.Join(path, marker))
			}
		}

		parent := filepath.Dir(path)
		if parent == path {
			return wd, nil
		}
		path = parent
	}
}

func loadOptions(projectDir string) (tasks.Options, error) {
	overrides := tasks.Options{}

	manifestPath := filepath.Join(projectDir, "tools.yml")
	content, err := ioutil.ReadFile(manifestPath)
	if err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			return overrides, eris.Wrapf(err, "Failed to read %s", manifestPath)
		}
	} else {
		err = yaml.Unmarshal(content, &overrides)
		if err != nil {
			return overrides, eris.Wrapf(err, "Failed to parse %s", manifestPath)
		}
	}

	overrides.Dir = projectDir
	return tasks.NewOptions(overrides), nil
}

func listTasks(reg *tasks.Registry) {
	fmt.Println("Available tasks:")

	names := []string{}
	maxNameLen := 0
	for _, name := range reg.Names() {
		task, _ := reg.Get(name)
		if task.Hidden {
			continue
		}

		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
		names = append(names, name)
	}

	sort.Strings(names)

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range names {
		task, _ := reg.Get(name)
		fmt.Printf(lineFmt, name+":", task.Desc)
	}
}
