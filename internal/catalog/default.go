package catalog

// Default returns the built-in back-care routine.
func Default() *Catalog {
	c, err := New(defaultExercises)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultExercises = []Exercise{
	{
		ID:           "standing_ext",
		Title:        "Standing Back Extension",
		Description:  "Strengthens your lower back muscles and improves spinal stability to reduce pain.",
		Duration:     "5 Mins",
		Intensity:    "Low",
		Category:     "Stability",
		VideoURL:     "https://videos.pexels.com/video-files/5319759/5319759-sd_640_360_25fps.mp4",
		ThumbnailURL: "https://images.pexels.com/photos/4506166/pexels-photo-4506166.jpeg?auto=compress&cs=tinysrgb&w=600",
		Steps: []string{
			"Stand upright with your feet shoulder-width apart.",
			"Place your hands on your lower back for support.",
			"Gently lean backward, arching your spine comfortably.",
			"Hold for 3 seconds, then return to start. Repeat 10 times.",
		},
	},
	{
		ID:           "pelvic_tilt",
		Title:        "Pelvic Tilt",
		Description:  "A fundamental exercise to strengthen abdominal muscles and stretch the lower back.",
		Duration:     "5 Mins",
		Intensity:    "Low",
		Category:     "Core",
		VideoURL:     "https://videos.pexels.com/video-files/4496229/4496229-sd_640_360_25fps.mp4",
		ThumbnailURL: "https://images.pexels.com/photos/4498606/pexels-photo-4498606.jpeg?auto=compress&cs=tinysrgb&w=600",
		Steps: []string{
			"Lie on your back with knees bent and feet flat on floor.",
			"Flatten your back against the floor by tightening abdominal muscles.",
			"Hold for 5 to 10 seconds while breathing normally.",
			"Relax and repeat 10 times.",
		},
	},
	{
		ID:           "cat_cow",
		Title:        "Cat-Cow Stretch",
		Description:  "Increases flexibility of the neck, shoulders, and spine. Great for stiffness.",
		Duration:     "3 Mins",
		Intensity:    "Low",
		Category:     "Mobility",
		VideoURL:     "https://videos.pexels.com/video-files/4434242/4434242-sd_640_360_24fps.mp4",
		ThumbnailURL: "https://images.pexels.com/photos/3822864/pexels-photo-3822864.jpeg?auto=compress&cs=tinysrgb&w=600",
		Steps: []string{
			"Start on your hands and knees, back neutral.",
			"Inhale and arch your back (Cow), looking up.",
			"Exhale and round your spine (Cat), tucking your chin.",
			"Move slowly between positions for 1-2 minutes.",
		},
	},
	{
		ID:           "bird_dog",
		Title:        "Bird-Dog",
		Description:  "Improves balance and stability by engaging core and back muscles.",
		Duration:     "8 Mins",
		Intensity:    "Medium",
		Category:     "Stability",
		VideoURL:     "https://videos.pexels.com/video-files/4057867/4057867-sd_640_360_25fps.mp4",
		ThumbnailURL: "https://images.pexels.com/photos/4056535/pexels-photo-4056535.jpeg?auto=compress&cs=tinysrgb&w=600",
		Steps: []string{
			"Start on all fours. Keep your spine neutral.",
			"Extend your right arm forward and left leg back.",
			"Hold for a few seconds, keeping hips level.",
			"Switch sides. Repeat 8-10 reps per side.",
		},
	},
	{
		ID:           "knee_chest",
		Title:        "Knee-to-Chest Stretch",
		Description:  "Relieves tension in the lower back and glutes.",
		Duration:     "4 Mins",
		Intensity:    "Low",
		Category:     "Relief",
		VideoURL:     "https://videos.pexels.com/video-files/6755883/6755883-sd_640_360_25fps.mp4",
		ThumbnailURL: "https://images.pexels.com/photos/3759658/pexels-photo-3759658.jpeg?auto=compress&cs=tinysrgb&w=600",
		Steps: []string{
			"Lie on your back with legs extended.",
			"Pull one knee up to your chest, holding with hands.",
			"Keep the other leg flat or knee bent.",
			"Hold for 20-30 seconds, then switch legs.",
		},
	},
	{
		ID:           "child_pose",
		Title:        "Child's Pose",
		Description:  "A restful pose that gently stretches the spine, hips, and thighs.",
		Duration:     "2 Mins",
		Intensity:    "Low",
		Category:     "Relief",
		VideoURL:     "https://videos.pexels.com/video-files/6698662/6698662-sd_640_360_25fps.mp4",
		ThumbnailURL: "https://images.pexels.com/photos/3756525/pexels-photo-3756525.jpeg?auto=compress&cs=tinysrgb&w=600",
		Steps: []string{
			"Kneel on the floor and sit back on your heels.",
			"Lean forward, extending your arms on the floor in front of you.",
			"Rest your forehead on the floor and breathe deeply.",
			"Hold for 1-2 minutes.",
		},
	},
}
