/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Player plays synthesized audio
type Player interface {
	Play(ctx context.Context, audio *Audio) error
}

// CommandPlayer pipes audio into an external player such as "mpg123 -q -"
type CommandPlayer struct {
	name string
	args []string
}

// NewCommandPlayer parses command into a program and its arguments
func NewCommandPlayer(command string) (*CommandPlayer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("player command is empty")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("player %q not found: %w", fields[0], err)
	}
	return &CommandPlayer{name: fields[0], args: fields[1:]}, nil
}

// Play blocks until the player exits
func (p *CommandPlayer) Play(ctx context.Context, audio *Audio) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.name, p.args...)
	cmd.Stdin = bytes.NewReader(audio.Data)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("player %s failed: %w: %s", p.name, err, msg)
		}
		return fmt.Errorf("player %s failed: %w", p.name, err)
	}
	return nil
}
