// YHS Sign
// Copyright (c) 2025 The YHS Sign Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of YHS Sign.
//
// YHS Sign is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// YHS Sign is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with YHS Sign.  If not, see <http://www.gnu.org/licenses/>.

package models

type PutTextRequest struct {
	Text     *string `json:"text" validate:"required"`
	Mode     string  `json:"mode,omitempty"`
	Position string  `json:"position,omitempty"`
}

type PutTopicRequest struct {
	Delay string   `json:"delay,omitempty" validate:"duration"`
	Lines []string `json:"lines" validate:"required,min=1,max=16,dive,linelength"`
}

type PostScriptRequest struct {
	Language string `json:"language" validate:"required"`
	Script   string `json:"script" validate:"required"`
	Key      string `json:"key,omitempty"`
	Label    string `json:"label,omitempty" validate:"label"`
}
