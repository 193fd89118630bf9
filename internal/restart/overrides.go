package restart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/snek/internal/fsutil"
	"github.com/roach88/snek/internal/params"
	"github.com/roach88/snek/internal/rundir"
	"github.com/roach88/snek/internal/value"
)

// TimeOverrides changes how long the restarted run lasts. At most one field
// may be set.
type TimeOverrides struct {
	NumSteps     *int
	EndTime      *float64
	AddToEndTime *float64
}

// Validate rejects more than one override.
func (o TimeOverrides) Validate() error {
	n := 0
	if o.NumSteps != nil {
		n++
	}
	if o.EndTime != nil {
		n++
	}
	if o.AddToEndTime != nil {
		n++
	}
	if n > 1 {
		return errors.New("--add-to-end-time, --end-time and --num-steps are exclusive options")
	}
	return nil
}

// Apply sets nek.general.stop_at and the matching limit.
func (o TimeOverrides) Apply(p *params.Node) error {
	if err := o.Validate(); err != nil {
		return err
	}
	switch {
	case o.NumSteps != nil:
		if err := p.SetPath("nek.general.stop_at", value.String("numSteps")); err != nil {
			return err
		}
		return p.SetPath("nek.general.num_steps", value.Int(int64(*o.NumSteps)))
	case o.EndTime != nil || o.AddToEndTime != nil:
		var end float64
		if o.EndTime != nil {
			end = *o.EndTime
		} else {
			cur, err := p.GetPath("nek.general.end_time")
			if err != nil {
				return err
			}
			switch tv := cur.(type) {
			case value.Float:
				end = float64(tv) + *o.AddToEndTime
			case value.Int:
				end = float64(tv) + *o.AddToEndTime
			default:
				return fmt.Errorf("nek.general.end_time is %s, not a number", cur.Repr())
			}
		}
		if err := p.SetPath("nek.general.stop_at", value.String("endTime")); err != nil {
			return err
		}
		return p.SetPath("nek.general.end_time", value.Float(end))
	}
	return nil
}

// CreateNewDir creates the run directory of a restart with NewDirResults:
// <short>_<type>_<timestamp> next to the old run, with session_00 inside.
// The restart file, or the checkpoint sets of the old run, are linked into
// it and the run and session paths in res.Params are updated.
func CreateNewDir(res *Result, now time.Time) (string, error) {
	typeRun := "run"
	if v, ok := res.Params.Get("short_name_type_run"); ok {
		if s, ok := v.(value.String); ok && s != "" {
			typeRun = string(s)
		}
	}
	base := filepath.Join(filepath.Dir(res.Run), rundir.RunName(res.ShortName, typeRun, now))
	dir, err := fsutil.NextPath(base, false)
	if err != nil {
		return "", err
	}
	session := rundir.SessionPath(dir, 0)
	if err := os.MkdirAll(session, 0o755); err != nil {
		return "", err
	}

	if res.StartFrom != "" {
		src, err := filepath.Abs(res.StartFrom)
		if err != nil {
			return "", err
		}
		if err := os.Symlink(src, filepath.Join(session, rundir.RestartFile)); err != nil {
			return "", err
		}
	} else {
		chk, err := rundir.CheckpointFiles(res.Run)
		if err != nil {
			return "", err
		}
		for _, name := range chk {
			if err := os.Symlink(filepath.Join(res.Run, name), filepath.Join(dir, name)); err != nil {
				return "", err
			}
		}
	}

	res.NewSession = session
	res.SessionID = 0
	if err := setIfPresent(res.Params, "path_run", value.String(dir)); err != nil {
		return "", err
	}
	if err := setIfPresent(res.Params, "output.path_session", value.String(session)); err != nil {
		return "", err
	}
	return dir, nil
}
