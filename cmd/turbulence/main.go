// Command turbulence samples fractal noise and renders noise textures and tiles.
package main

import "github.com/MeKo-Tech/turbulence/internal/cmd"

func main() {
	cmd.Execute()
}
