package main

import (
	"fmt"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/memoarfaa/go-ntfs"
)

type rootParameters struct {
	FilesystemFilepath string `short:"f" long:"filesystem-filepath" description:"File-path of NTFS filesystem" required:"true"`
	ExtractFilepath    string `short:"e" long:"extract-filepath" description:"File-path to extract (use forward slashes), or #N for an MFT record number" required:"true"`
	OutputFilepath     string `short:"o" long:"output-filepath" description:"File-path to write to ('-' for STDOUT)" required:"true"`
}

var (
	rootArguments = new(rootParameters)
)

// extractReadSize is the chunk size used to stream a file's $DATA out to
// the output file.
const extractReadSize = 65536

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

	f, err := os.Open(rootArguments.FilesystemFilepath)
	log.PanicIf(err)

	defer f.Close()

	dev := ntfs.NewSectorDevice(f, nil, 512)

	vol, err := ntfs.Mount(dev)
	log.PanicIf(err)

	file, err := ntfs.Open(vol, rootArguments.ExtractFilepath)
	log.PanicIf(err)

	if file.IsDirectory() {
		fmt.Printf("Path names a directory, not a file.\n")
		os.Exit(2)
	}

	var g *os.File

	if rootArguments.OutputFilepath == "-" {
		g = os.Stdout
	} else {
		var oerr error

		g, oerr = os.Create(rootArguments.OutputFilepath)
		log.PanicIf(oerr)

		defer func() {
			g.Close()
		}()
	}

	buf := make([]byte, extractReadSize)
	var written int64

	for {
		n, rerr := file.Read(buf)
		if n > 0 {
			_, werr := g.Write(buf[:n])
			log.PanicIf(werr)

			written += int64(n)
		}

		if rerr != nil {
			log.PanicIf(rerr)
		}

		if n == 0 {
			break
		}
	}

	if rootArguments.OutputFilepath != "-" {
		fmt.Printf("(%d) bytes written.\n", written)
	}
}
