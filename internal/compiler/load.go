package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the artifacts compiled from a rules directory.
type LoadResult struct {
	KBases    []*KBase             // sorted by name
	Resources map[string]*Resource // by resource name
	CUEValue  cue.Value
	FileCount int
}

// LoadDir loads the CUE package in dir, checks it against the artifact
// schema and compiles every kbase and resource.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := applySchema(ctx.BuildInstance(inst))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, []error{buildError(err)}
	}

	result := &LoadResult{
		Resources: make(map[string]*Resource),
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	if resVal := value.LookupPath(cue.ParsePath("resource")); resVal.Exists() {
		iter, err := resVal.Fields()
		if err != nil {
			return result, []error{buildError(err)}
		}
		for iter.Next() {
			res, err := CompileResource(iter.Value())
			if err != nil {
				errs = append(errs, err)
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			result.Resources[res.Name] = res
		}
	}

	kbVal := value.LookupPath(cue.ParsePath("kbase"))
	if !kbVal.Exists() {
		return result, append(errs, &LoadError{Code: ErrCodeNoKBase, Message: fmt.Sprintf("no kbase declared in %s", dir)})
	}
	iter, err := kbVal.Fields()
	if err != nil {
		return result, append(errs, buildError(err))
	}
	for iter.Next() {
		kb, err := CompileKBase(iter.Value())
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.KBases = append(result.KBases, kb)
	}
	sort.Slice(result.KBases, func(i, j int) bool { return result.KBases[i].Name < result.KBases[j].Name })

	return result, errs
}

// FindCUEFiles returns the .cue files directly in dir.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func buildError(err error) error {
	var ce *CompileError
	if errors.As(formatCUEError(err), &ce) {
		return &LoadError{Code: ErrCodeBuildFailed, Message: ce.Message, Pos: ce.Pos}
	}
	return &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
}
