package tasks

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// evaluateDepcheckReport applies our policy to the analyzer's JSON report.
// Invalid plain script files are fatal while invalid type-checked sources are
// only logged since the analyzer's parser is less reliable for those. Unused
// dependencies fail unless they're sticky or pure type definition packages.
func evaluateDepcheckReport(ctx context.Context, report []byte, stickyDeps []string) error {
	if !gjson.ValidBytes(report) {
		return eris.New("dependency analyzer returned an unreadable report")
	}

	sticky := make(map[string]bool, len(stickyDeps))
	for _, dep := range stickyDeps {
		sticky[dep] = true
	}

	problems := 0
	for file, reason := range gjson.GetBytes(report, "invalidFiles").Map() {
		if strings.HasSuffix(file, ".js") {
			log(ctx).Error().Msgf("Invalid file %s: %s", file, reason.String())
			problems++
		} else {
			log(ctx).Warn().Msgf("Skipping unparsable file %s: %s", file, reason.String())
		}
	}

	for _, section := range []string{"dependencies", "devDependencies"} {
		for _, item := range gjson.GetBytes(report, section).Array() {
			name := item.String()
			if sticky[name] || strings.HasPrefix(name, "@types/") {
				continue
			}

			log(ctx).Error().Msgf("Unused dependency %s", name)
			problems++
		}
	}

	if problems > 0 {
		return eris.Wrapf(ErrDependencyIssues, "found %d problems", problems)
	}

	return nil
}

// RegisterDepcheck adds the depcheck task which runs a static dependency
// analyzer over the project and fails on unreferenced script files or unused
// dependencies.
func RegisterDepcheck(reg *Registry, opts Options) error {
	if reg.Has("depcheck") {
		return nil
	}

	return reg.RegisterTask(&Task{
		Name: "depcheck",
		Desc: "Checks for unreferenced files and unused dependencies",
		Action: func(ctx context.Context) error {
			report, err := runToolCapture(ctx, opts.Dir, "depcheck", ".", "--json")
			if err != nil {
				// The analyzer exits non-zero whenever it finds something;
				// only the report tells us whether that's fatal.
				if _, ok := exitStatus(err); !ok {
					return eris.Wrap(err, "Failed to run depcheck")
				}
			}

			if report == nil {
				return nil
			}

			return evaluateDepcheckReport(ctx, report, opts.StickyDeps)
		},
	})
}
