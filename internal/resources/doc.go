// Package resources finds the on-disk directory holding the bundled Python
// runtime and backend scripts.
//
// A valid resource root R contains R/python and R/backend. The locator tries
// the deployment layouts in priority order:
//
//  1. <dir of running executable>/resources   (portable / unpacked installs)
//  2. the host platform's resource directory  (installed bundles)
//  3. <project checkout>/resources            (development, found by walking up
//     from the working directory to the first directory holding src-tauri)
//  4. <working directory>/resources
//
// An explicitly configured directory, when set, is tried before all of them.
package resources
