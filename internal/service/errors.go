package service

import "fmt"

func errCountMismatch(got, want int) error {
	return fmt.Errorf("got %d embeddings for %d chunks", got, want)
}
