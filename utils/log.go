package utils

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ToZeroLogArray renders every element through its String() method.
func ToZeroLogArray[S ~[]T, T fmt.Stringer](arr S) *zerolog.Array {
	ret := zerolog.Arr()

	for _, elem := range arr {
		ret = ret.Str(elem.String())
	}

	return ret
}
