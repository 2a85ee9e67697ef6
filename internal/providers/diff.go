package providers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/karrick/godirwalk"
	buffruneio "github.com/pelletier/go-buffruneio"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// TreeDiffer computes a diffstat between two exported package trees by
// walking both with godirwalk (the teacher lineage's own choice for fast
// recursive directory walks, see its internal/fs helpers) and, for every
// text file present on both sides, counting changed lines with a
// buffruneio.Reader the way go-toml's own lexer streams runes rather than
// loading a file whole. Files only on one side count their full line count
// as changed.
type TreeDiffer struct{}

// Diffstat implements audit.DiffProvider.
func (TreeDiffer) Diffstat(ctx context.Context, a, b string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return diffTrees(ctx, a, b)
}

// diffTrees fans out one goroutine per file pair over an errgroup, bounded
// so a tree with thousands of files doesn't open that many file descriptors
// at once; ranking many suggestion candidates is the reason this needs to
// be fast rather than simply correct.
func diffTrees(ctx context.Context, a, b string) (uint64, error) {
	filesA, err := listFiles(a)
	if err != nil {
		return 0, errors.Wrapf(err, "walking %s", a)
	}
	filesB, err := listFiles(b)
	if err != nil {
		return 0, errors.Wrapf(err, "walking %s", b)
	}

	var total uint64
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)

	seen := make(map[string]bool, len(filesA))
	for rel := range filesA {
		rel := rel
		seen[rel] = true
		if _, ok := filesB[rel]; !ok {
			g.Go(func() error {
				n, err := countLines(filepath.Join(a, rel))
				if err != nil {
					return err
				}
				atomic.AddUint64(&total, n)
				return nil
			})
			continue
		}
		g.Go(func() error {
			n, err := diffLineCount(filepath.Join(a, rel), filepath.Join(b, rel))
			if err != nil {
				return err
			}
			atomic.AddUint64(&total, n)
			return nil
		})
	}
	for rel := range filesB {
		rel := rel
		if seen[rel] {
			continue
		}
		g.Go(func() error {
			n, err := countLines(filepath.Join(b, rel))
			if err != nil {
				return err
			}
			atomic.AddUint64(&total, n)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return atomic.LoadUint64(&total), nil
}

func listFiles(root string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				switch de.Name() {
				case ".git", ".hg", ".bzr", ".svn":
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(root, osPathname)
			if err != nil {
				return err
			}
			out[rel] = struct{}{}
			return nil
		},
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

func countLines(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return countReaderLines(f)
}

func countReaderLines(f *os.File) (uint64, error) {
	rd := buffruneio.NewReader(f)
	var n uint64
	sawAny := false
	for {
		r, _, err := rd.ReadRune()
		if r == buffruneio.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		sawAny = true
		if r == '\n' {
			n++
		}
	}
	if sawAny && n == 0 {
		n = 1
	}
	return n, nil
}

// diffLineCount approximates a line-oriented diffstat between two files by
// comparing their line sets: lines present in one file but not the other
// count toward the total, regardless of position. This is intentionally
// cruder than a real LCS diff, but it is stable, cheap, and enough to rank
// candidates by "how much changed" the way Suggest needs.
func diffLineCount(pathA, pathB string) (uint64, error) {
	linesA, err := readLines(pathA)
	if err != nil {
		return 0, err
	}
	linesB, err := readLines(pathB)
	if err != nil {
		return 0, err
	}
	if len(linesA) == len(linesB) {
		identical := true
		for i := range linesA {
			if linesA[i] != linesB[i] {
				identical = false
				break
			}
		}
		if identical {
			return 0, nil
		}
	}

	countA := map[string]int{}
	for _, l := range linesA {
		countA[l]++
	}
	countB := map[string]int{}
	for _, l := range linesB {
		countB[l]++
	}

	var changed uint64
	for l, ca := range countA {
		cb := countB[l]
		if cb < ca {
			changed += uint64(ca - cb)
		}
	}
	for l, cb := range countB {
		ca := countA[l]
		if ca < cb {
			changed += uint64(cb - ca)
		}
	}
	return changed, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	rd := buffruneio.NewReader(f)
	var lines []string
	var b strings.Builder
	for {
		r, _, err := rd.ReadRune()
		if r == buffruneio.EOF {
			if b.Len() > 0 {
				lines = append(lines, b.String())
			}
			break
		}
		if err != nil {
			return nil, err
		}
		if r == '\n' {
			lines = append(lines, b.String())
			b.Reset()
			continue
		}
		b.WriteRune(r)
	}
	return lines, nil
}
