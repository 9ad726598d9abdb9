package tasks

// Options configures the task setup functions. Every field has a default;
// callers override any subset via NewOptions. The registered task closures
// capture what they need, nothing is kept in the registry itself.
type Options struct {
	// Dir is the project directory against which sources, build artifacts and
	// configuration files are resolved.
	Dir string `yaml:"dir"`

	// StickyDeps lists declared dependencies that are exempt from the unused
	// dependency check.
	StickyDeps []string `yaml:"stickyDeps"`

	// TSSrcs selects the type-checked sources.
	TSSrcs []string `yaml:"tsSrcs"`

	// JSSrcs selects the plain script sources.
	JSSrcs []string `yaml:"jsSrcs"`

	// DataSrcs selects the non-source files that are copied into the output
	// directory during build.
	DataSrcs []string `yaml:"dataSrcs"`

	// BuildArtifacts lists the output directories removed by clean.
	BuildArtifacts []string `yaml:"buildArtifacts"`
}

// DefaultOptions returns the defaults shared by all our tooling projects:
// sources under src/, tests under test/, compiled output in lib/ and fetched
// type definitions in typings/.
func DefaultOptions() Options {
	return Options{
		Dir:            ".",
		StickyDeps:     []string{},
		TSSrcs:         []string{"src/**/*.ts", "test/**/*.ts"},
		JSSrcs:         []string{"src/**/*.js", "test/**/*.js"},
		DataSrcs:       []string{"src/**/*.html", "src/**/*.css", "src/**/*.json"},
		BuildArtifacts: []string{"lib", "typings"},
	}
}

// NewOptions merges the given overrides over the defaults. A provided field
// fully replaces the default for that field (an explicitly empty list is
// respected); fields left at their zero value keep the default. Fields are
// independent of each other.
func NewOptions(overrides Options) Options {
	opts := DefaultOptions()

	if overrides.Dir != "" {
		opts.Dir = overrides.Dir
	}
	if overrides.StickyDeps != nil {
		opts.StickyDeps = overrides.StickyDeps
	}
	if overrides.TSSrcs != nil {
		opts.TSSrcs = overrides.TSSrcs
	}
	if overrides.JSSrcs != nil {
		opts.JSSrcs = overrides.JSSrcs
	}
	if overrides.DataSrcs != nil {
		opts.DataSrcs = overrides.DataSrcs
	}
	if overrides.BuildArtifacts != nil {
		opts.BuildArtifacts = overrides.BuildArtifacts
	}

	return opts
}
