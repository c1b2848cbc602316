package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/memoarfaa/go-ntfs"
)

type rootParameters struct {
	Filepath       string `short:"f" long:"filepath" description:"File-path of NTFS filesystem" required:"true"`
	FilenameFilter string `short:"p" long:"pattern" description:"Filename filter"`
	ShowDetail     bool   `short:"d" long:"detail" description:"Show additional entry detail"`
}

var (
	rootArguments = new(rootParameters)
)

// dirEntry is one name surfaced by a single ScanDirectory enumeration pass,
// kept alongside the directory flag the completion hook reported.
type dirEntry struct {
	name        string
	isDirectory bool
}

func walk(vol *ntfs.Volume, recordNumber uint64, currentPath string, visit func(fullPath string, recordNumber uint64, isDirectory bool) error) (err error) {
	buf, err := vol.ReadMFTRecord(recordNumber)
	log.PanicIf(err)

	var entries []dirEntry

	complete := func(name string, isDirectory bool) error {
		entries = append(entries, dirEntry{name: name, isDirectory: isDirectory})
		return nil
	}

	_, _, err = ntfs.ScanDirectory(vol, buf, recordNumber, "", complete)
	log.PanicIf(err)

	for _, e := range entries {
		ref, found, serr := ntfs.ScanDirectory(vol, buf, recordNumber, e.name, nil)
		log.PanicIf(serr)

		if !found {
			continue
		}

		childPath := path.Join(currentPath, e.name)

		verr := visit(childPath, ref.RecordNumber(), e.isDirectory)
		log.PanicIf(verr)

		if e.isDirectory {
			werr := walk(vol, ref.RecordNumber(), childPath, visit)
			log.PanicIf(werr)
		}
	}

	return nil
}

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	f, err := os.Open(rootArguments.Filepath)
	log.PanicIf(err)

	defer f.Close()

	dev := ntfs.NewSectorDevice(f, nil, 512)

	vol, err := ntfs.Mount(dev)
	log.PanicIf(err)

	visit := func(fullPath string, recordNumber uint64, isDirectory bool) error {
		if rootArguments.FilenameFilter != "" {
			isMatched, merr := filepath.Match(rootArguments.FilenameFilter, path.Base(fullPath))
			log.PanicIf(merr)

			if !isMatched {
				return nil
			}
		}

		if rootArguments.ShowDetail {
			fmt.Printf("## %s\n", fullPath)
			fmt.Printf("\n")

			info, ierr := ntfs.Info(vol, recordNumber)
			log.PanicIf(ierr)

			info.Dump()
			fmt.Printf("\n")

			return nil
		}

		size := uint64(0)

		if !isDirectory {
			file, oerr := ntfs.OpenRecord(vol, recordNumber)
			log.PanicIf(oerr)

			size = uint64(file.Size())
		}

		fmt.Printf("%15s %s\n", humanize.Comma(int64(size)), fullPath)

		return nil
	}

	err = walk(vol, 5, "/", visit)
	log.PanicIf(err)
}
