package rosetta

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jlingford/ddg-rosetta/internal/config"
	"github.com/jlingford/ddg-rosetta/internal/mutation"
)

// Default names of the files linking the steps of a protocol.
const (
	// Scorefile is the engine's default text scorefile.
	Scorefile = "score.sc"
	// BestStructureFile receives the lowest-scoring structure of a
	// structure-generating step, as input to the next step.
	BestStructureFile = "best.pdb"
)

// Unit is a prepared engine run.
type Unit struct {
	Dir string
	Job *mutation.Job
}

// PrepareStep writes the input files of one step below runDir/step.WD.
// Steps without a mutation input get a single unit directory; the others
// get one directory per job, named from the job's original numbering, and
// the job's engine-numbered mutation is written to the mutation file.
func PrepareStep(runDir string, spec config.StepSpec, step config.Step, jobs []mutation.Job, b Bindings) ([]Unit, error) {
	base := filepath.Join(runDir, step.WD)
	if spec.Input == config.NoMutation {
		opts, err := BindOptions(step, b)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", spec.Name, err)
		}
		if err := WriteFlagsFile(filepath.Join(base, FlagsFile), opts); err != nil {
			return nil, err
		}
		return []Unit{{Dir: base}}, nil
	}

	units := make([]Unit, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		dir := filepath.Join(base, filepath.FromSlash(job.Path))
		jb := unitBindings(b, job)

		var err error
		switch spec.Input {
		case config.Mutfile:
			jb.MutFile = MutfileName
			err = WriteMutfileFile(filepath.Join(dir, MutfileName), job.Engine.Mutation)
		case config.Resfile:
			err = WriteResfileFile(filepath.Join(dir, ResfileName), job.Engine.Mutation)
		}
		if err != nil {
			return nil, fmt.Errorf("step %s: %s: %w", spec.Name, job.Path, err)
		}

		opts, err := BindOptions(step, jb)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", spec.Name, err)
		}
		if err := WriteFlagsFile(filepath.Join(dir, FlagsFile), opts); err != nil {
			return nil, err
		}
		units = append(units, Unit{Dir: dir, Job: job})
	}
	return units, nil
}

// unitBindings adds the attributes of one job to the shared bindings:
// the resfile, the replicate number and the mutation's extra fields.
func unitBindings(b Bindings, job *mutation.Job) Bindings {
	attrs := make(map[string]string, len(b.Attrs)+len(job.Engine.Mutation.Extra)+2)
	for k, v := range b.Attrs {
		attrs[k] = v
	}
	for k, v := range job.Engine.Mutation.Extra {
		attrs[k] = v
	}
	attrs["resfile"] = ResfileName
	if job.Engine.Replicate > 0 {
		attrs["struct"] = strconv.Itoa(job.Engine.Replicate)
	}
	b.Attrs = attrs
	return b
}

// SelectBest copies the lowest-scoring structure listed in the scorefile
// of dir to dir/BestStructureFile and returns its score.
func SelectBest(dir string, step config.Step, pdb string) (Score, error) {
	best, err := BestStructure(filepath.Join(dir, Scorefile))
	if err != nil {
		return Score{}, err
	}
	src := filepath.Join(dir, OutputStructureName(step, pdb, best.Structure))
	if err := copyFile(src, filepath.Join(dir, BestStructureFile)); err != nil {
		return Score{}, fmt.Errorf("select structure %d: %w", best.Structure, err)
	}
	return best, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
