// gen_sequence writes a placeholder instruction sequence for runs against the
// simulated device, which checks only the word count.
package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/pflag"

	"github.com/23skdu/longbow-npubench/internal/sequence"
)

func main() {
	out := pflag.StringP("out", "o", "sequences/df_bw_4col.txt", "output file")
	words := pflag.IntP("words", "n", 64, "instruction word count")
	seed := pflag.Uint64("seed", 1, "random seed")
	pflag.Parse()

	rng := rand.New(rand.NewPCG(*seed, 0))
	w := make([]uint32, *words)
	for i := range w {
		w[i] = rng.Uint32()
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()
	if err := sequence.Write(f, w, fmt.Sprintf("generated, %d words", *words)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
