// Command vdextract reads ART Vdex container files and extracts the Dex
// bytecode archives embedded within them, optionally unquickening method
// bytecode back to its canonical form.
//
// Flags are parsed by hand with a switch over os.Args, since the
// "="-joined syntax this tool's flags use (--input=PATH, --debug=0..4)
// doesn't match the stdlib flag package's space-separated convention.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kestrelsec/vdextract/internal/dex"
	"github.com/kestrelsec/vdextract/internal/manifest"
	"github.com/kestrelsec/vdextract/internal/mmapfile"
	"github.com/kestrelsec/vdextract/internal/pretty"
	"github.com/kestrelsec/vdextract/internal/quicken"
	"github.com/kestrelsec/vdextract/internal/vdex"
	"github.com/kestrelsec/vdextract/internal/verifierdeps"
	"github.com/kestrelsec/vdextract/internal/verrors"
	"github.com/kestrelsec/vdextract/internal/vlog"
)

const (
	exitOK       = 0
	exitProcess  = 1
	exitArgument = 2
)

// config holds the parsed command-line surface.
type config struct {
	input         string
	output        string
	fileOverride  bool
	unquicken     bool
	dis           bool
	deps          bool
	ignoreCRC     bool
	logFile       string
	debug         int
	getAPILevel   bool
	newCRC        string
	manifestDSN   string
}

func main() {
	os.Exit(cmdMain(os.Args[1:]))
}

// cmdMain is main's body minus the os.Exit call, so tests can drive the
// full argument-parsing-through-exit-code path without forking a process.
func cmdMain(args []string) int {
	cfg, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vdextract:", err)
		return exitArgument
	}
	return run(cfg)
}

func parseArgs(args []string) (*config, error) {
	cfg := &config{debug: 2} // default severity matches vlog.New's WARN
	for _, arg := range args {
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--input":
			cfg.input = value
		case "--output":
			cfg.output = value
		case "--file-override":
			cfg.fileOverride = true
		case "--unquicken":
			cfg.unquicken = true
		case "--dis":
			cfg.dis = true
		case "--deps":
			cfg.deps = true
		case "--ignore-crc-error":
			cfg.ignoreCRC = true
		case "--log-file":
			cfg.logFile = value
		case "--debug":
			if !hasValue {
				return nil, fmt.Errorf("--debug requires a value (0..4)")
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("--debug value %q is not an integer", value)
			}
			cfg.debug = n
		case "--get-api-level":
			cfg.getAPILevel = true
		case "--new-crc":
			cfg.newCRC = value
		case "--manifest-dsn":
			cfg.manifestDSN = value
		default:
			return nil, fmt.Errorf("unrecognized flag %q", arg)
		}
	}
	if cfg.input == "" {
		return nil, fmt.Errorf("--input=PATH is required")
	}
	return cfg, nil
}

func run(cfg *config) int {
	logger := vlog.New()
	logger.SetLevel(vlog.LevelFromDebugFlag(cfg.debug))
	if cfg.logFile != "" {
		f, err := os.Create(cfg.logFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "vdextract: opening --log-file:", err)
			return exitArgument
		}
		defer f.Close()
		logger.SetDiagOutput(f)
	}

	var store *manifest.Store
	if cfg.manifestDSN != "" {
		s, err := manifest.Open(cfg.manifestDSN)
		if err != nil {
			logger.Fatalf("opening manifest store: %v", err)
			return exitArgument
		}
		defer s.Close()
		store = s
	}

	info, err := os.Stat(cfg.input)
	if err != nil {
		logger.Fatalf("%v", err)
		return exitProcess
	}

	hadError := false
	visit := func(path string) {
		if procErr := processFile(cfg, logger, store, path); procErr != nil {
			logger.Errorf("%s: %v", path, procErr)
			hadError = true
		}
	}

	if info.IsDir() {
		walkErr := filepath.WalkDir(cfg.input, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			visit(path)
			return nil
		})
		if walkErr != nil {
			logger.Fatalf("walking %s: %v", cfg.input, walkErr)
			return exitProcess
		}
	} else {
		visit(cfg.input)
	}

	if hadError {
		return exitProcess
	}
	return exitOK
}

// processFile handles one input file end to end: detect the container,
// then dispatch to --get-api-level, --new-crc, or ordinary extraction.
func processFile(cfg *config, logger *vlog.Logger, store *manifest.Store, path string) error {
	mf, err := mmapfile.Open(path)
	if err != nil {
		return verrors.Wrap(err, verrors.IOError, "opening input").WithFile(path)
	}
	defer mf.Close()

	if len(mf.Data) == 0 {
		return verrors.New(verrors.IOError, "empty input file").WithFile(path)
	}

	// The mapping itself stays a read-only borrow; every mutation (checksum
	// repair, instruction rewriting, access-flags unhiding) happens on a
	// private copy, so only one mutable copy of each Dex exists at a time.
	buf := append([]byte(nil), mf.Data...)

	container, err := vdex.Detect(buf)
	if err != nil {
		recordRun(store, path, "", 0, cfg.unquicken, manifest.OutcomeSkipped, err.Error())
		return errors.Wrapf(err, "detecting container")
	}

	if cfg.getAPILevel {
		level, ok := apiLevelFor(container.Version())
		if !ok {
			return verrors.New(verrors.UnsupportedContainer, "no API level mapping for this version").
				WithFile(path)
		}
		fmt.Println(level)
		return nil
	}

	if cfg.newCRC != "" {
		return applyNewCRC(cfg, container, buf, path)
	}

	return extract(cfg, logger, store, container, buf, path)
}

// apiLevelFor maps a container version to the API-level string --get-api-level
// prints.
func apiLevelFor(v vdex.Version) (string, bool) {
	switch v {
	case vdex.Version006:
		return "API-26", true
	case vdex.Version010:
		return "API-27", true
	case vdex.Version019:
		return "API-28", true
	case vdex.Version021:
		return "API-29", true
	default:
		return "", false
	}
}

// applyNewCRC reads one checksum per line from cfg.newCRC (hex with a 0x
// prefix, or decimal) and overwrites the container's per-Dex
// location_checksum cells in ascending Dex order, then writes
// "<name>_updated.vdex". This bypasses extraction entirely.
func applyNewCRC(cfg *config, container vdex.Container, buf []byte, path string) error {
	crcs, err := readNewCRCs(cfg.newCRC)
	if err != nil {
		return verrors.Wrap(err, verrors.IOError, "reading --new-crc file").WithFile(cfg.newCRC)
	}
	n := int(container.NumberOfDexFiles())
	if len(crcs) < n {
		return verrors.New(verrors.IOError, fmt.Sprintf("--new-crc file has %d checksums, need %d", len(crcs), n)).
			WithFile(cfg.newCRC)
	}
	for i := 0; i < n; i++ {
		container.SetLocationChecksum(i, crcs[i])
	}

	outDir := cfg.output
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outPath := filepath.Join(outDir, base+"_updated.vdex")
	return writeOutputFile(outPath, buf, cfg.fileOverride)
}

func readNewCRCs(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []uint32
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var v uint64
		if strings.HasPrefix(line, "0x") || strings.HasPrefix(line, "0X") {
			v, err = strconv.ParseUint(line[2:], 16, 32)
		} else {
			v, err = strconv.ParseUint(line, 10, 32)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid checksum line %q: %w", line, err)
		}
		out = append(out, uint32(v))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// extract walks every Dex embedded in container, unhiding hidden-API
// access flags unconditionally and unquickening when --unquicken is set,
// then repairs or validates each output's checksum and writes it out.
func extract(cfg *config, logger *vlog.Logger, store *manifest.Store, container vdex.Container, buf []byte, path string) error {
	version := container.Version()
	dexFiles, err := container.DexFiles()
	if err != nil {
		recordRun(store, path, string(version), 0, cfg.unquicken, manifest.OutcomeError, err.Error())
		return errors.Wrapf(err, "reading dex section")
	}
	if len(dexFiles) == 0 {
		logger.Infof("%s: no Dex data", path)
		recordRun(store, path, string(version), 0, cfg.unquicken, manifest.OutcomeOK, "no dex data")
		return nil
	}

	var quickInfo []byte
	var sharedReader006 quicken.HintReader
	if cfg.unquicken {
		quickInfo = container.QuickeningInfo().Data
		if version == vdex.Version006 {
			sharedReader006 = quicken.NewFlatHintReader(quickInfo)
		}
	}

	var dumper *pretty.Dumper
	if cfg.dis {
		dumper = pretty.NewDumper(logWriter{logger})
	}

	outDir := cfg.output
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var firstErr error
	written := 0
	var depsDecoder *verifierdeps.Decoder
	if cfg.deps && container.VerifierDeps().Size > 0 {
		depsDecoder = verifierdeps.NewDecoder(container.VerifierDeps().Data)
	}
	for i, df := range dexFiles {
		dexBuf := append([]byte(nil), df.Data...)
		f, err := dex.Parse(dexBuf)
		if err != nil {
			logger.Errorf("%s: dex %d: %v", path, i, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if cfg.dis {
			dumper.DumpHeader(fmt.Sprintf("%s[%d]", path, i), f)
			dumper.DumpClassDefs(f)
		}

		if depsDecoder != nil {
			if dd, derr := depsDecoder.DecodeDex(); derr != nil {
				logger.Warnf("%s: dex %d: verifier-deps: %v", path, i, derr)
			} else {
				dumper2 := dumper
				if dumper2 == nil {
					dumper2 = pretty.NewDumper(logWriter{logger})
				}
				dumper2.DumpVerifierDeps(f, dd)
			}
		}

		var reader quicken.HintReader
		if cfg.unquicken {
			reader, err = buildHintReader(version, buf, quickInfo, sharedReader006, dexFiles, i, container)
			if err != nil {
				logger.Errorf("%s: dex %d: %v", path, i, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}

		if err := walkDex(f, reader, dumper); err != nil {
			logger.Errorf("%s: dex %d: %v", path, i, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		// 006's hint stream is shared across every Dex in the container, so
		// its residue is only meaningful once the last Dex has been walked.
		if reader != nil && version != vdex.Version006 {
			if err := reader.CheckResidue(); err != nil {
				logger.Errorf("%s: dex %d: %v", path, i, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}

		if cfg.unquicken {
			computed := dex.ComputeCRC(dexBuf, f.Header.FileSize)
			if computed != f.Header.Checksum {
				if cfg.ignoreCRC {
					dex.RepairCRC(dexBuf, f.Header.FileSize)
				} else {
					err := verrors.New(verrors.ChecksumMismatch, "checksum mismatch after unquicken").
						WithFile(path).WithDex(i)
					logger.Errorf("%v", err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
			}
		} else {
			dex.RepairCRC(dexBuf, f.Header.FileSize)
		}

		outPath := outputDexPath(outDir, base, i, f.Kind)
		if err := writeOutputFile(outPath, dexBuf, cfg.fileOverride); err != nil {
			logger.Errorf("%s: writing %s: %v", path, outPath, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
	}

	if reader006Residue := sharedReader006; reader006Residue != nil {
		if err := reader006Residue.CheckResidue(); err != nil {
			logger.Errorf("%s: %v", path, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	outcome := manifest.OutcomeOK
	detail := fmt.Sprintf("extracted %d dex files", written)
	if firstErr != nil {
		outcome = manifest.OutcomeError
		detail = firstErr.Error()
	}
	recordRun(store, path, string(version), written, cfg.unquicken, outcome, detail)
	return firstErr
}

// buildHintReader constructs the per-Dex HintReader for versions whose
// quickening-hint schema is framed per Dex file (010, 019/021); 006 reuses
// the single shared reader built before the loop, and 027 carries none.
func buildHintReader(version vdex.Version, vdexBuf, quickInfo []byte, shared006 quicken.HintReader,
	dexFiles []vdex.DexFile, i int, container vdex.Container) (quicken.HintReader, error) {
	switch version {
	case vdex.Version006:
		return shared006, nil
	case vdex.Version010:
		return quicken.NewIndexedHintReader010(quickInfo, len(dexFiles), i)
	case vdex.Version019, vdex.Version021:
		qto, ok := container.(vdex.QuickenTableOffsetter)
		if !ok {
			return quicken.NewNoHintReader(), nil
		}
		off := qto.QuickenTableOffsetFor(dexFiles[i])
		return quicken.NewCompactHintReader(vdexBuf, off, quickInfo)
	default:
		return quicken.NewNoHintReader(), nil
	}
}

// walkDex visits every method with a code item in f, unhiding its
// access flags unconditionally and unquickening it when reader is
// non-nil. When dumper is non-nil each method is disassembled after any
// rewrite, tagging instructions whose opcode changed.
func walkDex(f *dex.File, reader quicken.HintReader, dumper *pretty.Dumper) error {
	for classIdx := uint32(0); classIdx < f.Header.ClassDefsSize; classIdx++ {
		cd, err := f.ClassDefAt(classIdx)
		if err != nil {
			return err
		}
		if cd.ClassDataOff == 0 {
			continue
		}
		classData, err := f.ClassDataAt(cd.ClassDataOff)
		if err != nil {
			return err
		}

		for _, fld := range classData.StaticFields {
			f.RewriteAccessFlags(fld.AccessFlagsOff, fld.AccessFlagsWidth, fld.AccessFlags, false)
		}
		for _, fld := range classData.InstanceFields {
			f.RewriteAccessFlags(fld.AccessFlagsOff, fld.AccessFlagsWidth, fld.AccessFlags, false)
		}

		methodLists := [2][]dex.EncodedMethod{classData.DirectMethods, classData.VirtualMethods}
		for _, methods := range methodLists {
			for _, m := range methods {
				f.RewriteAccessFlags(m.AccessFlagsOff, m.AccessFlagsWidth, m.AccessFlags, true)
				if m.CodeOff == 0 {
					continue
				}

				ci, err := f.CodeItemAt(m.CodeOff, f.Kind)
				if err != nil {
					return err
				}

				var original []uint16
				if dumper != nil && reader != nil {
					original = append([]uint16(nil), ci.Insns...)
				}

				if reader != nil {
					slice, skip, err := reader.HintSliceFor(m.CodeOff, int(m.MethodIdx))
					if err != nil {
						return err
					}
					if !skip {
						if err := quicken.UnquickenMethod(ci, slice); err != nil {
							return err
						}
						f.PutInsns(ci)
					}
				}

				if dumper != nil {
					dumper.DumpMethod(f, m, ci, original)
				}
			}
		}
	}
	return nil
}

func outputDexPath(outDir, base string, idx int, kind dex.Kind) string {
	ext := ".dex"
	if kind == dex.KindCompactDex {
		ext = ".cdex"
	}
	name := "classes"
	if idx > 0 {
		name = fmt.Sprintf("classes%d", idx+1)
	}
	return filepath.Join(outDir, base+"_"+name+ext)
}

func writeOutputFile(path string, data []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return verrors.New(verrors.IOError, "output already exists, rerun with --file-override").WithFile(path)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func recordRun(store *manifest.Store, path, version string, dexCount int, unquicken bool, outcome manifest.Outcome, detail string) {
	if store == nil {
		return
	}
	run := manifest.Run{
		FilePath:  path,
		Version:   version,
		DexCount:  dexCount,
		Unquicken: unquicken,
		Outcome:   outcome,
		Detail:    detail,
	}
	_ = store.Record(run, time.Now())
}

// logWriter adapts vlog.Logger's unfiltered Dump stream to io.Writer, so
// internal/pretty.NewDumper can write disassembly through the same
// independent stream --log-file/--debug never touch.
type logWriter struct {
	logger *vlog.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.logger.Dump("%s", string(p))
	return len(p), nil
}
