package register

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	require.Equal(t, ClassNone, Classify(nil))
	require.Equal(t, ClassConfiguration, Classify(fmt.Errorf("%w: no root", ErrConfiguration)))
	require.Equal(t, ClassResourceLocked, Classify(wrapRepo("upload", "a.xlsx", fmt.Errorf("423: %w", ErrResourceLocked))))
	require.Equal(t, ClassRepository, Classify(wrapRepo("upload", "a.xlsx", errors.New("boom"))))
	require.Equal(t, ClassRepository, Classify(context.DeadlineExceeded))
	require.Equal(t, ClassProgramming, Classify(&ProgrammingError{Op: "render", Err: errors.New("bad style")}))
	require.True(t, ClassResourceLocked.Retryable())
	require.False(t, ClassRepository.Retryable())
}

func TestWrapRepoKeepsInnermostOp(t *testing.T) {
	inner := wrapRepo("create workbook", "a.xlsx", ErrResourceLocked)
	outer := wrapRepo("claim", "b.xlsx", inner)
	require.Same(t, inner, outer)
	require.Equal(t, `create workbook "a.xlsx": resource locked`, outer.Error())
}
