// Copyright 2025 Halcyonic Labs
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


// Package openai provides implementations of the ai package interfaces
// using OpenAI-compatible APIs via langchaingo.
//
// It works with any service exposing the OpenAI wire format, including
// Ollama, LocalAI, vLLM, and OpenAI itself. Authentication uses a dummy
// token by default, suitable for local deployments.
//
// The embedding and generation services may live on different hosts and
// use different models; see ai.Config.
package openai
