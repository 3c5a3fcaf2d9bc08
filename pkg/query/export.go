// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteNDJSON drains rows, writing one JSON object per line, until the
// channel closes or w returns an error.
func WriteNDJSON(w io.Writer, rows <-chan Row) (int, error) {
	enc := json.NewEncoder(w)
	count := 0
	for row := range rows {
		if err := enc.Encode(row); err != nil {
			return count, fmt.Errorf("encode row %d: %w", count, err)
		}
		count++
	}
	return count, nil
}
