/*
Copyright © 2025 the SFT authors.
This file is part of SFT.

SFT is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

SFT is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with SFT.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command sft is a command-line interface for the SFT solar surface flux
// transport model.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/sft/sftutil"
)

func main() {
	if err := sftutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
