package main

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestExecuteClosesAfterFailedCommand(t *testing.T) {
	failure := errors.New("no such book")
	root := &cobra.Command{Use: "readaloud", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(&cobra.Command{
		Use:  "read",
		RunE: func(cmd *cobra.Command, args []string) error { return failure },
	})
	root.SetArgs([]string{"read"})

	closed := 0
	err := execute(context.Background(), root, func() error {
		closed++
		return errors.New("close failed")
	})

	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 1, closed)
}

func TestExecuteClosesAfterSuccess(t *testing.T) {
	root := &cobra.Command{Use: "readaloud", Run: func(cmd *cobra.Command, args []string) {}}
	root.SetArgs([]string{})

	closed := false
	err := execute(context.Background(), root, func() error {
		closed = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, closed)
}
