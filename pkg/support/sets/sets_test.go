// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := Make[int](10)
	assert.Len(t, s, 0)

	s.Insert(7, 3, 7)
	assert.Len(t, s, 2)
	assert.True(t, s.Has(3))
	assert.False(t, s.Has(5))
	assert.Equal(t, []int{3, 7}, Sorted(s))

	clone := s.Clone()
	clone.Insert(1)
	assert.Len(t, s, 2)
	assert.Equal(t, []int{1, 3, 7}, Sorted(clone))
	assert.Equal(t, []string{"a", "b"}, Sorted(MakeWith("b", "a")))
}
